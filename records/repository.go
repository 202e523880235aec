// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mobilizabr/mobiliza/geocoding"
	"github.com/mobilizabr/mobiliza/spatial"
	"github.com/mobilizabr/mobiliza/utils/textutils"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("record not found")

// Filter narrows List. Zero values match everything.
type Filter struct {
	Kind Kind
	// City is compared ignoring case and accents
	City string
}

// Repository handles persistence of records.
type Repository interface {
	// CreateSchema creates the records table
	CreateSchema() error

	// Save inserts or replaces a record, assigning an id when missing
	Save(ctx context.Context, rec *Record) error

	// Get returns a record by id
	Get(ctx context.Context, id string) (*Record, error)

	// List returns records sorted by id
	List(ctx context.Context, f Filter) ([]*Record, error)

	// Count returns the total number of records
	Count(ctx context.Context) (int, error)

	// Update writes the point and provider fields produced by geocoding
	Update(ctx context.Context, id string, fields geocoding.Fields) error

	// DB returns the underlying database connection
	DB() *sql.DB
}

type sqlRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a record repository over a DuckDB connection.
func NewRepository(db *sql.DB) Repository {
	return &sqlRepository{db: db, now: time.Now}
}

func (r *sqlRepository) DB() *sql.DB {
	return r.db
}

func (r *sqlRepository) CreateSchema() error {
	// DuckDB needs to load the spatial extension
	_, err := r.db.Exec(`INSTALL spatial; LOAD spatial;`)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			id VARCHAR PRIMARY KEY,
			kind VARCHAR NOT NULL,
			name VARCHAR NOT NULL,
			postal_code VARCHAR,
			street VARCHAR NOT NULL,
			number VARCHAR,
			neighborhood VARCHAR,
			city VARCHAR NOT NULL,
			city_key VARCHAR NOT NULL,
			state VARCHAR NOT NULL,
			point POINT_2D,
			geocoding_provider VARCHAR,
			h3_res8 UBIGINT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)

	return err
}

// pointExpr renders the SQL for an optional point and its arguments.
// DuckDB can't infer the type of NULL parameters to ST_Point.
func pointExpr(p *spatial.Point) (string, []any) {
	if p == nil {
		return "NULL", nil
	}

	return "ST_Point(?, ?)", []any{p.Lng, p.Lat}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func (r *sqlRepository) Save(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	rec.sanitize()

	if err := rec.Validate(); err != nil {
		return err
	}

	cell, err := h3Cell(rec.Point)
	if err != nil {
		return err
	}

	rec.H3Cell = cell

	existing, err := r.Get(ctx, rec.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	rec.UpdatedAt = r.now()
	if existing != nil {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}

	expr, pointArgs := pointExpr(rec.Point)

	a := rec.Address
	args := []any{
		string(rec.Kind), rec.Name,
		nullable(a.PostalCode), a.Street, nullable(a.Number), nullable(a.Neighborhood),
		a.City, textutils.LowerASCIIFolding(a.City), a.State,
	}
	args = append(args, pointArgs...)
	args = append(args, nullable(rec.GeocodingProvider), nullable64(rec.H3Cell), rec.CreatedAt, rec.UpdatedAt, rec.ID)

	if existing != nil {
		_, err = r.db.ExecContext(ctx, `
			UPDATE records
			SET kind = ?, name = ?,
			    postal_code = ?, street = ?, number = ?, neighborhood = ?,
			    city = ?, city_key = ?, state = ?,
			    point = `+expr+`, geocoding_provider = ?, h3_res8 = ?,
			    created_at = ?, updated_at = ?
			WHERE id = ?
		`, args...)

		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO records(
			kind, name,
			postal_code, street, number, neighborhood,
			city, city_key, state,
			point, geocoding_provider, h3_res8,
			created_at, updated_at, id
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, `+expr+`, ?, ?, ?, ?, ?)
	`, args...)

	return err
}

func nullable64(v int64) any {
	if v == 0 {
		return nil
	}

	return v
}

var baseSelect = `
	SELECT id, kind, name,
	       postal_code, street, number, neighborhood, city, state,
	       point, geocoding_provider, h3_res8,
	       created_at, updated_at
	FROM records
`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	rec := &Record{}

	var kind string

	var postalCode, number, neighborhood, prov sql.NullString

	var point spatial.NullPoint

	var cell sql.NullInt64

	err := row.Scan(
		&rec.ID, &kind, &rec.Name,
		&postalCode, &rec.Address.Street, &number, &neighborhood, &rec.Address.City, &rec.Address.State,
		&point, &prov, &cell,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Kind = Kind(kind)
	rec.Address.PostalCode = postalCode.String
	rec.Address.Number = number.String
	rec.Address.Neighborhood = neighborhood.String
	rec.Point = point.Ptr()
	rec.GeocodingProvider = prov.String
	rec.H3Cell = cell.Int64

	return rec, nil
}

func (r *sqlRepository) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, baseSelect+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return rec, err
}

func (r *sqlRepository) List(ctx context.Context, f Filter) ([]*Record, error) {
	var (
		where []string
		args  []any
	)

	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}

	if f.City != "" {
		where = append(where, "city_key = ?")
		args = append(args, textutils.LowerASCIIFolding(f.City))
	}

	query := baseSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*Record

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}

		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

func (r *sqlRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records",
	).Scan(&count)

	return count, err
}

// Update only accepts the fields geocoding writes back. Any other key is
// rejected so a bulk run can never touch the rest of the record.
func (r *sqlRepository) Update(ctx context.Context, id string, fields geocoding.Fields) error {
	if len(fields) == 0 {
		return nil
	}

	var (
		sets []string
		args []any
	)

	for name, value := range fields {
		switch name {
		case geocoding.FieldPoint:
			p, err := asPoint(value)
			if err != nil {
				return err
			}

			cell, err := h3Cell(p)
			if err != nil {
				return err
			}

			expr, pointArgs := pointExpr(p)
			sets = append(sets, "point = "+expr, "h3_res8 = ?")
			args = append(args, pointArgs...)
			args = append(args, nullable64(cell))
		case geocoding.FieldGeocodingProvider:
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("field %s: expected string, got %T", name, value)
			}

			sets = append(sets, "geocoding_provider = ?")
			args = append(args, nullable(s))
		default:
			return fmt.Errorf("field %q can't be updated", name)
		}
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, r.now(), id)

	res, err := r.db.ExecContext(ctx, "UPDATE records SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("updating %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}

func asPoint(v any) (*spatial.Point, error) {
	var p *spatial.Point

	switch t := v.(type) {
	case spatial.Point:
		p = &t
	case *spatial.Point:
		p = t
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("field %s: expected spatial.Point, got %T", geocoding.FieldPoint, v)
	}

	if p != nil {
		if err := validateCoordinates(*p); err != nil {
			return nil, fmt.Errorf("field %s: %w", geocoding.FieldPoint, err)
		}
	}

	return p, nil
}
