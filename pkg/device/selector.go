package device

import (
	"fmt"
	"strconv"
	"strings"
)

// AnyIndex selects whichever device of the requested type is available
const AnyIndex = -1

// Selector names a device by type and optional index, e.g. "VPUX" or "HAILO.1"
type Selector struct {
	Kind  string
	Index int
}

// ParseSelector parses "KIND" or "KIND.N"
func ParseSelector(s string) (Selector, error) {
	s = strings.TrimSpace(s)
	kind, idx, hasIdx := strings.Cut(s, ".")
	if kind == "" {
		return Selector{}, fmt.Errorf("%w: %q", ErrInvalidSelector, s)
	}
	for _, r := range kind {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return Selector{}, fmt.Errorf("%w: %q", ErrInvalidSelector, s)
		}
	}

	sel := Selector{Kind: strings.ToUpper(kind), Index: AnyIndex}
	if hasIdx {
		n, err := strconv.Atoi(idx)
		if err != nil || n < 0 {
			return Selector{}, fmt.Errorf("%w: bad index in %q", ErrInvalidSelector, s)
		}
		sel.Index = n
	}
	return sel, nil
}

// MustParseSelector is ParseSelector for constant selectors; it panics on error
func MustParseSelector(s string) Selector {
	sel, err := ParseSelector(s)
	if err != nil {
		panic(err)
	}
	return sel
}

// String returns the selector in "KIND" or "KIND.N" form
func (s Selector) String() string {
	if s.Index == AnyIndex {
		return s.Kind
	}
	return fmt.Sprintf("%s.%d", s.Kind, s.Index)
}

// MatchesKind reports whether the selector names the given device type
func (s Selector) MatchesKind(kind string) bool {
	return strings.EqualFold(s.Kind, kind)
}
