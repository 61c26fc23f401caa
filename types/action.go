package types

import (
	"fmt"
	"strings"
)

// Action is the desired state of one permission bit for a security group.
// The zero value is Inherit, which means "leave the server state alone".
type Action uint8

// closed set of permission actions
const (
	Inherit Action = iota
	Allow
	Deny
	NotSet
)

var actionNames = map[Action]string{
	Inherit: "Inherit",
	Allow:   "Allow",
	Deny:    "Deny",
	NotSet:  "NotSet",
}

// AllActions lists every Action in declaration order
var AllActions = []Action{Inherit, Allow, Deny, NotSet}

// ParseAction parses a serialized Action, ignoring case
func ParseAction(s string) (Action, error) {
	s = strings.TrimSpace(s)
	for a, n := range actionNames {
		if strings.EqualFold(n, s) {
			return a, nil
		}
	}
	return Inherit, fmt.Errorf("%w: unknown permission action %q", ErrParse, s)
}

// IsChange tells if applying the action requires a server call
func (a Action) IsChange() bool {
	return a != Inherit
}

func (a Action) String() string {
	n, ok := actionNames[a]
	if !ok {
		return "unknown"
	}
	return n
}

// MarshalText implements encoding.TextMarshaler
func (a Action) MarshalText() ([]byte, error) {
	n, ok := actionNames[a]
	if !ok {
		return nil, fmt.Errorf("%w: permission action %d", ErrParse, uint8(a))
	}
	return []byte(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Action) UnmarshalText(text []byte) error {
	parsed, e := ParseAction(string(text))
	if e != nil {
		return e
	}
	*a = parsed
	return nil
}
