package processor

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInstanceID   = errors.New("processor: empty instance id")
	ErrEmptyModelID      = errors.New("processor: empty model id")
	ErrDuplicateModelID  = errors.New("processor: duplicate model id")
	ErrInstanceMismatch  = errors.New("processor: instance id mismatch")
	ErrBrokenLink        = errors.New("processor: broken parent link")
	ErrTaskWithChildren  = errors.New("processor: task has children")
	ErrUnknownKind       = errors.New("processor: unknown kind")
	ErrInvalidConditions = errors.New("processor: preconditions must be a conditions group")
)

// Validate checks tree structure: ids, parent links, kinds and duplicates.
func (p *Processor) Validate() error {
	if p.InstanceID == "" {
		return ErrEmptyInstanceID
	}
	seen := map[string]bool{}
	return p.validate(p.InstanceID, seen)
}

func (p *Processor) validate(instanceID string, seen map[string]bool) error {
	if p.ModelID == "" {
		return fmt.Errorf("%w: node %q", ErrEmptyModelID, p.Name)
	}
	if seen[p.ModelID] {
		return fmt.Errorf("%w: %v", ErrDuplicateModelID, p.ModelID)
	}
	seen[p.ModelID] = true
	if p.InstanceID != instanceID {
		return fmt.Errorf("%w: %v has %q, expected %q", ErrInstanceMismatch, p.ModelID, p.InstanceID, instanceID)
	}
	switch {
	case p.Kind == KindTask:
		if len(p.Children) > 0 {
			return fmt.Errorf("%w: %v", ErrTaskWithChildren, p.ModelID)
		}
	case p.Kind.IsComposite():
	default:
		return fmt.Errorf("%w: %q at %v", ErrUnknownKind, p.Kind, p.ModelID)
	}
	if p.PreConditions != nil {
		if p.PreConditions.Kind != KindConditions {
			return fmt.Errorf("%w: %v", ErrInvalidConditions, p.ModelID)
		}
		if p.PreConditions.parent != p {
			return fmt.Errorf("%w: preconditions of %v", ErrBrokenLink, p.ModelID)
		}
		if err := p.PreConditions.validate(instanceID, seen); err != nil {
			return err
		}
	}
	for _, child := range p.Children {
		if child == nil {
			return fmt.Errorf("%w: nil child of %v", ErrBrokenLink, p.ModelID)
		}
		if child.parent != p {
			return fmt.Errorf("%w: %v -> %v", ErrBrokenLink, p.ModelID, child.ModelID)
		}
		if err := child.validate(instanceID, seen); err != nil {
			return err
		}
	}
	return nil
}
