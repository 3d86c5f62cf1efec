package criteria

import (
	"github.com/viant/cascade/model/metadata"
	"github.com/viant/cascade/runtime/execution"
	"github.com/viant/cascade/service/dao"
)

// MatchMetadata returns true when, for every parameter, the bag holds at
// least one of the allowed values. A parameter without values only requires
// the key to be present.
func MatchMetadata(md metadata.Metadata, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil {
			continue
		}
		actual := md[parameter.Name]
		if len(actual) == 0 {
			return false
		}
		if len(parameter.Values) == 0 {
			continue
		}
		if !containsAny(actual, parameter.Values) {
			return false
		}
	}
	return true
}

// MatchState returns true when state name is one of names; no names match all.
func MatchState(state execution.State, names ...string) bool {
	if len(names) == 0 {
		return true
	}
	for _, name := range names {
		if state.Name == name {
			return true
		}
	}
	return false
}

// MatchCategory returns true when state category is one of categories
func MatchCategory(state execution.State, categories ...execution.Category) bool {
	if len(categories) == 0 {
		return true
	}
	for _, category := range categories {
		if state.Category == category {
			return true
		}
	}
	return false
}

func containsAny(actual, allowed []string) bool {
	for _, candidate := range actual {
		for _, value := range allowed {
			if candidate == value {
				return true
			}
		}
	}
	return false
}
