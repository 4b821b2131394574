package params

import (
	"fmt"
	"sort"
)

// Registry is an immutable, year-indexed set of parameter bundles. It does no
// I/O after construction.
type Registry struct {
	byYear      map[int]FiscalParameters
	defaultYear int
}

func NewRegistry(defaultYear int, bundles ...FiscalParameters) (*Registry, error) {
	byYear := make(map[int]FiscalParameters, len(bundles))
	for _, b := range bundles {
		if err := b.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byYear[b.Year]; dup {
			return nil, fmt.Errorf("%w: duplicate year %d", ErrInvalidParameters, b.Year)
		}
		byYear[b.Year] = b.WithPolicy(b.ParafiscalPolicy)
	}
	return &Registry{byYear: byYear, defaultYear: defaultYear}, nil
}

func (r *Registry) Get(year int) (FiscalParameters, error) {
	p, ok := r.byYear[year]
	if !ok {
		return FiscalParameters{}, fmt.Errorf("%w: %d", ErrUnknownFiscalYear, year)
	}
	// copy so callers cannot mutate the shared ARL table
	return p.WithPolicy(p.ParafiscalPolicy), nil
}

func (r *Registry) Default() (FiscalParameters, error) { return r.Get(r.defaultYear) }

func (r *Registry) DefaultYear() int { return r.defaultYear }

func (r *Registry) Years() []int {
	years := make([]int, 0, len(r.byYear))
	for y := range r.byYear {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
