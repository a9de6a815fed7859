package product

import (
	"context"
	"database/sql"
)

// Repository is the abstract contract over the products table (spec.md
// §6). Atomicity requirements for Save are spec.md §4.5's.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Product, error)
	FindBySKU(ctx context.Context, sku string) (*Product, error)
	// FindAll returns up to limit products ordered by id, starting after
	// afterID (empty for the first page), and the id to pass as afterID
	// for the next page (empty when there is none). SPEC_FULL.md §9
	// resolves the list surface to this basic cursor shape rather than a
	// HATEOAS "with-links" variant.
	FindAll(ctx context.Context, afterID string, limit int) (items []*Product, nextCursor string, err error)
	// Save persists p using tx, enforcing optimistic concurrency via a
	// compare-and-set on Version (spec.md §4.5: "Implementations may use
	// row-level compare-and-set on version"). expectedVersion is the
	// version the caller loaded; Save must affect exactly one row or
	// return ErrConcurrentWrite.
	Save(ctx context.Context, tx *sql.Tx, p *Product, expectedVersion int64) error
}

// ErrConcurrentWrite is returned by Repository.Save when the
// compare-and-set affected zero rows (spec.md §4.5).
var ErrConcurrentWrite = errConcurrentWrite{}

type errConcurrentWrite struct{}

func (errConcurrentWrite) Error() string { return "product: concurrent write detected" }
