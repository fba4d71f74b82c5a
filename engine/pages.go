package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePages turns page arguments such as "1", "3,5" or "2-4" into page
// numbers, keeping their order. "all" or no arguments returns nil, which
// ConvertPages reads as every page. Range checks against the document happen
// when the selection is used.
func ParsePages(specs []string) ([]int, error) {
	var pages []int
	for _, spec := range specs {
		for _, part := range strings.Split(spec, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if strings.EqualFold(part, "all") {
				return nil, nil
			}

			start, end, isRange := strings.Cut(part, "-")
			if !isRange || start == "" {
				// "-3" is a negative number, not a range
				page, err := strconv.Atoi(part)
				if err != nil {
					return nil, fmt.Errorf("%w: invalid page number %q", ErrInvalidOption, part)
				}
				pages = append(pages, page)
				continue
			}

			from, err := strconv.Atoi(strings.TrimSpace(start))
			if err != nil {
				return nil, fmt.Errorf("%w: invalid start page in %q", ErrInvalidOption, part)
			}
			to, err := strconv.Atoi(strings.TrimSpace(end))
			if err != nil {
				return nil, fmt.Errorf("%w: invalid end page in %q", ErrInvalidOption, part)
			}
			if from > to {
				return nil, fmt.Errorf("%w: page range %q runs backwards", ErrInvalidOption, part)
			}
			for p := from; p <= to; p++ {
				pages = append(pages, p)
			}
		}
	}
	return pages, nil
}
