package property

import (
	"sort"
	"strings"
)

// CodeSet is an immutable set of configured codes. The zero value is empty
// and matches nothing.
type CodeSet struct {
	codes map[string]struct{}
}

// ParseCodeSet splits a comma separated value into a set. Members are
// trimmed and blanks dropped, so "" and " , " both yield the empty set.
func ParseCodeSet(raw string) CodeSet {
	var codes map[string]struct{}
	for _, part := range strings.Split(raw, ",") {
		code := strings.TrimSpace(part)
		if code == "" {
			continue
		}
		if codes == nil {
			codes = make(map[string]struct{})
		}
		codes[code] = struct{}{}
	}
	return CodeSet{codes: codes}
}

// NewCodeSet builds a set from explicit codes.
func NewCodeSet(codes ...string) CodeSet {
	return ParseCodeSet(strings.Join(codes, ","))
}

// Contains reports membership. The empty set contains nothing.
func (s CodeSet) Contains(code string) bool {
	if code == "" {
		return false
	}
	_, ok := s.codes[code]
	return ok
}

func (s CodeSet) Len() int { return len(s.codes) }

func (s CodeSet) IsEmpty() bool { return len(s.codes) == 0 }

// Codes returns the members in sorted order.
func (s CodeSet) Codes() []string {
	out := make([]string, 0, len(s.codes))
	for c := range s.codes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (s CodeSet) String() string {
	return strings.Join(s.Codes(), ",")
}
