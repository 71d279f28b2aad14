package pipeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParsePageSpec parses a page selection like "1,3,5-8" into sorted
// unique 1-indexed page numbers.
func ParsePageSpec(spec string) ([]int, error) {
	seen := make(map[int]bool)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, found := strings.Cut(part, "-"); found {
			start, err1 := strconv.Atoi(strings.TrimSpace(lo))
			end, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 != nil || err2 != nil || start < 1 || end < start {
				return nil, fmt.Errorf("invalid page range %q", part)
			}
			for n := start; n <= end; n++ {
				seen[n] = true
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid page number %q", part)
		}
		seen[n] = true
	}

	pages := make([]int, 0, len(seen))
	for n := range seen {
		pages = append(pages, n)
	}
	sort.Ints(pages)
	return pages, nil
}
