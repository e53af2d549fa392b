package correction

import (
	"fmt"
	"strings"
)

// Policy selects how the variation of the first month of a window is obtained.
type Policy int

const (
	// PolicyAnchored divides the first window value by the index of the month before the
	// start. A missing anchor is an error. This is the default.
	PolicyAnchored Policy = iota

	// PolicySelfReferential takes the first window value divided by 100 as the variation
	// of the first month. Kept for reproducing figures of older calculators.
	PolicySelfReferential
)

// String returns the configuration name of the policy.
func (p Policy) String() string {
	switch p {
	case PolicyAnchored:
		return "anchored"
	case PolicySelfReferential:
		return "self-referential"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyAnchored || p == PolicySelfReferential
}

// ParsePolicy reads a policy name. Empty input selects PolicyAnchored.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "anchored", "b":
		return PolicyAnchored, nil
	case "self-referential", "selfreferential", "a":
		return PolicySelfReferential, nil
	default:
		return PolicyAnchored, &InvalidRequestError{Field: "policy", Reason: fmt.Sprintf("unknown policy %q, expected anchored or self-referential", name)}
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
