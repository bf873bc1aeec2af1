package services

import (
	"github.com/resolveit/apiserver/internal/confirm"
	"github.com/resolveit/apiserver/types"
)

// AllowedValues is the set of values a confirmed change may write. It is
// consulted when a change is requested and again when it is confirmed.
type AllowedValues struct {
	Statuses   []types.Status
	Priorities []types.Priority
}

// DefaultAllowedValues returns the enumerations defined in types.
func DefaultAllowedValues() AllowedValues {
	return AllowedValues{
		Statuses:   append([]types.Status(nil), types.Statuses...),
		Priorities: append([]types.Priority(nil), types.Priorities...),
	}
}

// Allows reports whether value is a member of the enumeration that action
// writes to.
func (a AllowedValues) Allows(action confirm.Action, value string) bool {
	switch action {
	case confirm.ActionUpdateStatus:
		for _, status := range a.Statuses {
			if string(status) == value {
				return true
			}
		}
	case confirm.ActionUpdatePriority:
		for _, priority := range a.Priorities {
			if string(priority) == value {
				return true
			}
		}
	}
	return false
}
