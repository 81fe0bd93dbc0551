// Package backends selects a lip.Solver implementation by name.
package backends

import (
	"fmt"
	"sort"

	"pickbatch/internal/lip"
	"pickbatch/internal/lip/highs"
	"pickbatch/internal/lip/pbsolver"
)

const (
	PB    = "pb"
	HiGHS = "highs"
)

var registry = map[string]func() lip.Solver{
	PB:    func() lip.Solver { return pbsolver.New() },
	HiGHS: func() lip.Solver { return highs.New() },
}

// New returns the solver registered under name.
func New(name string) (lip.Solver, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown solver backend %q (have %v)", name, Names())
	}
	return f(), nil
}

// Names lists the registered backends.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
