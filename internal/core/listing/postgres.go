package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS listings (
	id             TEXT PRIMARY KEY,
	owner          TEXT NOT NULL DEFAULT '',
	card_name      TEXT NOT NULL,
	post_type      TEXT NOT NULL,
	price          DOUBLE PRECISION,
	condition      TEXT NOT NULL DEFAULT 'Near Mint',
	card_image_url TEXT NOT NULL DEFAULT '',
	is_api_price   BOOLEAN NOT NULL DEFAULT FALSE,
	is_active      BOOLEAN NOT NULL DEFAULT TRUE,
	enrichment     JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS listings_created_at_idx ON listings (created_at DESC);
CREATE INDEX IF NOT EXISTS listings_owner_idx ON listings (owner);
`

const selectColumns = `id, owner, card_name, post_type, price, condition, card_image_url,
	is_api_price, is_active, enrichment, created_at, updated_at`

// PostgresStore implements Store using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the listings table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*Listing, error) {
	var (
		l          Listing
		postType   string
		owner      string
		enrichment []byte
	)
	if err := row.Scan(&l.ID, &owner, &l.CardName, &postType, &l.Price, &l.Condition, &l.CardImageURL,
		&l.IsAPIPrice, &l.IsActive, &enrichment, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.Owner = Identity(owner)
	l.PostType = PostType(postType)
	e, err := UnmarshalEnrichment(enrichment)
	if err != nil {
		return nil, fmt.Errorf("decode enrichment for %s: %w", l.ID, err)
	}
	l.Enrichment = e
	return &l, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Listing, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) UpdateFields(ctx context.Context, id string, f Fields) error {
	if f.Empty() {
		return nil
	}
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if f.CardName != nil {
		set("card_name", *f.CardName)
	}
	if f.PostType != nil {
		set("post_type", string(*f.PostType))
	}
	if f.ClearPrice && f.Price == nil {
		sets = append(sets, "price = NULL")
	}
	if f.Price != nil {
		set("price", *f.Price)
	}
	if f.Condition != nil {
		set("condition", *f.Condition)
	}
	if f.CardImageURL != nil {
		set("card_image_url", *f.CardImageURL)
	}
	if f.IsAPIPrice != nil {
		set("is_api_price", *f.IsAPIPrice)
	}
	if f.IsActive != nil {
		set("is_active", *f.IsActive)
	}
	if f.Enrichment != nil {
		b, err := MarshalEnrichment(*f.Enrichment)
		if err != nil {
			return fmt.Errorf("encode enrichment: %w", err)
		}
		args = append(args, string(b))
		sets = append(sets, fmt.Sprintf("enrichment = $%d::jsonb", len(args)))
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE listings SET %s, updated_at = NOW() WHERE id = $%d`,
		strings.Join(sets, ", "), len(args))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*Listing, error) {
	var (
		where []string
		args  []any
	)
	if filter.ActiveOnly {
		where = append(where, "is_active = TRUE")
	}
	if filter.Owner != "" {
		args = append(args, string(filter.Owner))
		where = append(where, fmt.Sprintf("owner = $%d", len(args)))
	}
	query := `SELECT ` + selectColumns + ` FROM listings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var out []*Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, l *Listing) error {
	b, err := MarshalEnrichment(l.Enrichment)
	if err != nil {
		return fmt.Errorf("encode enrichment: %w", err)
	}
	var createdAt *time.Time
	if !l.CreatedAt.IsZero() {
		createdAt = &l.CreatedAt
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO listings (id, owner, card_name, post_type, price, condition, card_image_url,
			is_api_price, is_active, enrichment, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb,
			COALESCE($11::timestamptz, NOW()), COALESCE($11::timestamptz, NOW()))
		 RETURNING created_at, updated_at`,
		l.ID, string(l.Owner), l.CardName, string(l.PostType), l.Price, l.Condition, l.CardImageURL,
		l.IsAPIPrice, l.IsActive, string(b), createdAt,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create listing: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
