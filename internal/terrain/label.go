// Package terrain classifies environmental attributes into terrain labels
// using an ordered, configurable rule set, in crisp or fuzzy mode.
package terrain

import (
	"fmt"
	"strings"
)

// Label is a terrain tag.
type Label uint8

const (
	Uncertain Label = iota // no rule could be evaluated
	Mountains
	Hills
	Swamp
	Forest
	Desert
	Water
	Open
)

// Labels lists every label in rule order, Uncertain last.
var Labels = []Label{Mountains, Hills, Swamp, Forest, Desert, Water, Open, Uncertain}

var labelNames = map[Label]string{
	Uncertain: "uncertain",
	Mountains: "mountains",
	Hills:     "hills",
	Swamp:     "swamp",
	Forest:    "forest",
	Desert:    "desert",
	Water:     "water",
	Open:      "open",
}

func (l Label) String() string {
	if n, ok := labelNames[l]; ok {
		return n
	}
	return fmt.Sprintf("label(%d)", uint8(l))
}

// ParseLabel accepts a label name in any case.
func ParseLabel(s string) (Label, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for l, n := range labelNames {
		if n == s {
			return l, nil
		}
	}
	return Uncertain, fmt.Errorf("unknown terrain label %q", s)
}

func (l Label) MarshalText() ([]byte, error) {
	if _, ok := labelNames[l]; !ok {
		return nil, fmt.Errorf("invalid terrain label %d", uint8(l))
	}
	return []byte(l.String()), nil
}

func (l *Label) UnmarshalText(b []byte) error {
	v, err := ParseLabel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Counts returns how many results carry each label.
func Counts(results []Result) map[Label]int {
	counts := make(map[Label]int)
	for _, r := range results {
		counts[r.Label]++
	}
	return counts
}
