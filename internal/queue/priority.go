package queue

import (
	"errors"
	"fmt"
)

// Priority represents job priority level.
type Priority int

const (
	// PriorityHigh is for urgent jobs that should be processed first.
	PriorityHigh Priority = 1

	// PriorityNormal is for standard jobs (default).
	PriorityNormal Priority = 2

	// PriorityLow is for background jobs that can wait.
	PriorityLow Priority = 3
)

// String returns the string representation of a priority.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// MarshalJSON renders the priority as its string form.
func (p Priority) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// UnmarshalJSON accepts the string form produced by MarshalJSON.
func (p *Priority) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePriority converts a string, int, or Priority value to a Priority.
func ParsePriority(value any) (Priority, error) {
	switch v := value.(type) {
	case Priority:
		if !v.IsValid() {
			return PriorityNormal, fmt.Errorf("invalid priority value: %d", int(v))
		}
		return v, nil
	case int:
		p := Priority(v)
		if !p.IsValid() {
			return PriorityNormal, fmt.Errorf("invalid priority value: %d", v)
		}
		return p, nil
	case int64:
		return ParsePriority(int(v))
	case string:
		switch v {
		case "high":
			return PriorityHigh, nil
		case "normal", "":
			return PriorityNormal, nil
		case "low":
			return PriorityLow, nil
		default:
			return PriorityNormal, errors.New("invalid priority string: must be high, normal, or low")
		}
	default:
		return PriorityNormal, errors.New("invalid priority type")
	}
}

// AllPriorities returns all priority levels in order of precedence (high first).
func AllPriorities() []Priority {
	return []Priority{PriorityHigh, PriorityNormal, PriorityLow}
}

// Weight returns a numeric weight for the priority (lower = more important).
func (p Priority) Weight() int {
	return int(p)
}

// IsValid returns true if the priority is a valid value.
func (p Priority) IsValid() bool {
	return p >= PriorityHigh && p <= PriorityLow
}
