package batch

// rangeGroup represents a contiguous range of items in the pixel blob.
// All items in a group can be fetched with a single read.
type rangeGroup struct {
	start int64
	end   int64
	items []*Item
}

func (g rangeGroup) size() int64 {
	return g.end - g.start
}

// groupAdjacentItems groups items that are adjacent in the pixel blob.
//
// Items must be sorted by Offset. A new group starts at every gap and
// whenever extending the current group would exceed maxBytes (if positive).
// A single item larger than maxBytes forms its own group.
//
// The items slice must be non-empty.
func groupAdjacentItems(items []*Item, maxBytes int64) []rangeGroup {
	groups := make([]rangeGroup, 0, len(items))
	current := rangeGroup{
		start: items[0].Offset,
		end:   items[0].end(),
		items: []*Item{items[0]},
	}

	for _, item := range items[1:] {
		adjacent := item.Offset == current.end
		fits := maxBytes <= 0 || item.end()-current.start <= maxBytes
		if adjacent && fits {
			current.end = item.end()
			current.items = append(current.items, item)
			continue
		}
		groups = append(groups, current)
		current = rangeGroup{
			start: item.Offset,
			end:   item.end(),
			items: []*Item{item},
		}
	}
	return append(groups, current)
}
