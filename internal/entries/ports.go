// Package entries defines the entry store collaborators that feed the
// insights pipeline, plus the demo seeder.
package entries

import (
	"context"

	"budgetlens/internal/core"
)

type (
	// Lister returns every stored entry, oldest first.
	Lister interface {
		List(ctx context.Context) ([]core.Entry, error)
	}

	// Writer persists one entry and returns its identifier.
	Writer interface {
		Add(ctx context.Context, e core.Entry) (id string, err error)
	}

	// BatchWriter is implemented by stores that can insert many entries in
	// one round trip.
	BatchWriter interface {
		AddMany(ctx context.Context, entries []core.Entry) (ids []string, err error)
	}

	Store interface {
		Lister
		Writer
	}
)
