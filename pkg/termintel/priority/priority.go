// Package priority defines the high/medium/low tiers shared by suggestions.
package priority

import "fmt"

// Level orders suggestions for presentation. Lower values come first.
type Level int

const (
	High Level = iota + 1
	Medium
	Low
)

func (l Level) String() string {
	switch l {
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	default:
		return "none"
	}
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *Level) UnmarshalText(text []byte) error {
	switch string(text) {
	case "high":
		*l = High
	case "medium":
		*l = Medium
	case "low":
		*l = Low
	default:
		return fmt.Errorf("unknown priority %q", text)
	}
	return nil
}
