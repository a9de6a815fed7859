package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"

	"github.com/cebartling/orderflow/internal/product"
	"github.com/cebartling/orderflow/internal/telemetry"
)

const productsTable = "products"

// ProductRepository is the Postgres-backed product.Repository (spec.md
// §6), grounded on the teacher's product.postgresql.go: squirrel for
// the SKU-lookup and list queries, tracer-wrapped exec for writes, pgconn.PgError inspection
// for constraint violations.
type ProductRepository struct {
	Conn   *Connection
	Tracer trace.Tracer
}

// FindByID loads a product by primary key, returning (nil, nil) when
// absent.
func (r *ProductRepository) FindByID(ctx context.Context, id string) (*product.Product, error) {
	ctx, span := r.Tracer.Start(ctx, "postgres.product.find_by_id")
	defer span.End()

	row := r.Conn.DB().QueryRowContext(ctx,
		`SELECT id, sku, name, description, price_cents, status, version, deleted, deleted_by, created_at, updated_at
		 FROM `+productsTable+` WHERE id = $1`, id)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		telemetry.RecordSpanError(span, "scan product", err)
		return nil, err
	}

	return p, nil
}

// FindBySKU loads a product by its unique SKU, returning (nil, nil) when
// absent (used by the CREATE command to detect DUPLICATE_SKU, spec.md
// §4.4 step 4).
func (r *ProductRepository) FindBySKU(ctx context.Context, sku string) (*product.Product, error) {
	ctx, span := r.Tracer.Start(ctx, "postgres.product.find_by_sku")
	defer span.End()

	query, args, err := squirrel.Select(
		"id", "sku", "name", "description", "price_cents", "status", "version", "deleted", "deleted_by", "created_at", "updated_at",
	).From(productsTable).Where(squirrel.Eq{"sku": sku}).PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		telemetry.RecordSpanError(span, "build query", err)
		return nil, err
	}

	row := r.Conn.DB().QueryRowContext(ctx, query, args...)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		telemetry.RecordSpanError(span, "scan product", err)
		return nil, err
	}

	return p, nil
}

// FindAll returns a page of products ordered by id (spec.md §9 "List
// response shape" open question, resolved in SPEC_FULL.md to a basic
// cursor shape).
func (r *ProductRepository) FindAll(ctx context.Context, afterID string, limit int) ([]*product.Product, string, error) {
	ctx, span := r.Tracer.Start(ctx, "postgres.product.find_all")
	defer span.End()

	builder := squirrel.Select(
		"id", "sku", "name", "description", "price_cents", "status", "version", "deleted", "deleted_by", "created_at", "updated_at",
	).From(productsTable).OrderBy("id ASC").Limit(uint64(limit) + 1).PlaceholderFormat(squirrel.Dollar)

	if afterID != "" {
		builder = builder.Where(squirrel.Gt{"id": afterID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		telemetry.RecordSpanError(span, "build query", err)
		return nil, "", err
	}

	rows, err := r.Conn.DB().QueryContext(ctx, query, args...)
	if err != nil {
		telemetry.RecordSpanError(span, "query products", err)
		return nil, "", err
	}
	defer rows.Close()

	var items []*product.Product

	for rows.Next() {
		p := &product.Product{}
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.PriceCents, &p.Status, &p.Version, &p.Deleted, &p.DeletedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			telemetry.RecordSpanError(span, "scan product", err)
			return nil, "", err
		}

		items = append(items, p)
	}

	if err := rows.Err(); err != nil {
		telemetry.RecordSpanError(span, "iterate products", err)
		return nil, "", err
	}

	var nextCursor string

	if len(items) > limit {
		nextCursor = items[limit-1].ID
		items = items[:limit]
	}

	return items, nextCursor, nil
}

// Save performs an insert (expectedVersion == 0) or a compare-and-set
// update keyed on version (spec.md §4.5). Zero affected rows on an
// update means the version was stale and Save returns
// product.ErrConcurrentWrite.
func (r *ProductRepository) Save(ctx context.Context, tx *sql.Tx, p *product.Product, expectedVersion int64) error {
	ctx, span := r.Tracer.Start(ctx, "postgres.product.save")
	defer span.End()

	var (
		result sql.Result
		err    error
	)

	if expectedVersion == 0 {
		result, err = tx.ExecContext(ctx,
			`INSERT INTO `+productsTable+`
			 (id, sku, name, description, price_cents, status, version, deleted, deleted_by, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			p.ID, p.SKU, p.Name, p.Description, p.PriceCents, p.Status, p.Version, p.Deleted, p.DeletedBy, p.CreatedAt, p.UpdatedAt,
		)
	} else {
		result, err = tx.ExecContext(ctx,
			`UPDATE `+productsTable+`
			 SET name = $1, description = $2, price_cents = $3, status = $4, version = $5, deleted = $6, deleted_by = $7, updated_at = $8
			 WHERE id = $9 AND version = $10`,
			p.Name, p.Description, p.PriceCents, p.Status, p.Version, p.Deleted, p.DeletedBy, p.UpdatedAt, p.ID, expectedVersion,
		)
	}

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			telemetry.RecordSpanError(span, "duplicate sku", err)
			return &duplicateSKUError{sku: p.SKU}
		}

		telemetry.RecordSpanError(span, "exec save", err)

		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		telemetry.RecordSpanError(span, "rows affected", err)
		return err
	}

	if rows == 0 {
		return product.ErrConcurrentWrite
	}

	return nil
}

type duplicateSKUError struct{ sku string }

func (e *duplicateSKUError) Error() string { return "postgres: duplicate sku " + e.sku }

func scanProduct(row *sql.Row) (*product.Product, error) {
	p := &product.Product{}

	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.PriceCents, &p.Status, &p.Version, &p.Deleted, &p.DeletedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return p, nil
}
