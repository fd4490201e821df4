package sources

import (
	"cmp"
	"maps"
	"slices"

	"github.com/dshills/projecttask/internal/discovery"
)

// All returns every built-in source.
func All() []discovery.Source {
	return []discovery.Source{
		NewTasksFile(),
		NewMakefile(),
		NewTaskfile(),
		NewPackageJSON(),
	}
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}
