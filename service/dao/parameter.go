package dao

// Parameter represents a named filter with allowed values
type Parameter struct {
	Name   string
	Values []string
}

// NewParameter creates a filter parameter
func NewParameter(name string, values ...string) *Parameter {
	return &Parameter{Name: name, Values: values}
}

// NewParameters converts a key to allowed values map into parameters
func NewParameters(filter map[string][]string) []*Parameter {
	ret := make([]*Parameter, 0, len(filter))
	for name, values := range filter {
		ret = append(ret, NewParameter(name, values...))
	}
	return ret
}
