package space

import "fmt"

// Group identifies one optional dimension group contributed by a strategy.
type Group string

const (
	GroupBuy      Group = "buy"
	GroupSell     Group = "sell"
	GroupROI      Group = "roi"
	GroupStoploss Group = "stoploss"
	GroupTrailing Group = "trailing"

	// GroupDefault enables buy, sell, roi and stoploss.
	GroupDefault Group = "default"
	// GroupAll enables every group, trailing included.
	GroupAll Group = "all"
)

// groupOrder fixes the assembly order of enabled groups. Enabling a group is
// purely additive; positions of dimensions from groups earlier in the order
// never move when a later group is toggled.
var groupOrder = []Group{GroupBuy, GroupSell, GroupROI, GroupStoploss, GroupTrailing}

// Contributions holds the per-group dimension lists a strategy offers for
// tuning. Empty groups are simply skipped.
type Contributions struct {
	Buy      []Dimension
	Sell     []Dimension
	ROI      []Dimension
	Stoploss []Dimension
	Trailing []Dimension
}

func (c Contributions) group(g Group) []Dimension {
	switch g {
	case GroupBuy:
		return c.Buy
	case GroupSell:
		return c.Sell
	case GroupROI:
		return c.ROI
	case GroupStoploss:
		return c.Stoploss
	case GroupTrailing:
		return c.Trailing
	}
	return nil
}

// Enabled reports whether a group is selected by the configured set. The
// trailing group is excluded from "default", matching the selection the
// engine's users expect.
func Enabled(selected []Group, g Group) bool {
	for _, s := range selected {
		if s == g || s == GroupAll {
			return true
		}
		if s == GroupDefault && g != GroupTrailing {
			return true
		}
	}
	return false
}

// Assemble builds the ordered search space from the enabled groups.
func Assemble(c Contributions, selected []Group) (*Space, error) {
	var dims []Dimension
	for _, g := range groupOrder {
		if !Enabled(selected, g) {
			continue
		}
		dims = append(dims, c.group(g)...)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("space: no dimensions enabled by groups %v", selected)
	}
	return New(dims...)
}

// ParseGroups validates a group selection list.
func ParseGroups(names []string) ([]Group, error) {
	known := map[Group]struct{}{
		GroupBuy: {}, GroupSell: {}, GroupROI: {}, GroupStoploss: {},
		GroupTrailing: {}, GroupDefault: {}, GroupAll: {},
	}
	groups := make([]Group, 0, len(names))
	for _, n := range names {
		g := Group(n)
		if _, ok := known[g]; !ok {
			return nil, fmt.Errorf("space: unknown dimension group %q", n)
		}
		groups = append(groups, g)
	}
	return groups, nil
}
