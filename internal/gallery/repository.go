package gallery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/furnivision/furnivision/internal/design"
)

var ErrNotFound = errors.New("design not found")

// Summary is a gallery listing entry.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	ItemCount int       `json:"itemCount"`
	Thumbnail string    `json:"thumbnail,omitempty"`
}

func summaryOf(d design.Design) Summary {
	return Summary{ID: d.ID, Name: d.Name, Timestamp: d.Timestamp, ItemCount: len(d.Furniture), Thumbnail: d.Thumbnail}
}

// Repository persists saved designs.
type Repository interface {
	Save(ctx context.Context, d design.Design) error
	List(ctx context.Context) ([]Summary, error)
	Get(ctx context.Context, id string) (design.Design, error)
	Delete(ctx context.Context, id string) error
}

// DB is the part of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS designs (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	saved_at   TIMESTAMPTZ NOT NULL,
	item_count INTEGER NOT NULL,
	thumbnail  TEXT NOT NULL DEFAULT '',
	document   BYTEA NOT NULL
)`

// PostgresRepository stores designs in a single table with the document
// compressed by EncodeDesign.
type PostgresRepository struct {
	db DB
}

func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate designs: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Save(ctx context.Context, d design.Design) error {
	doc, err := EncodeDesign(d)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO designs (id, name, saved_at, item_count, thumbnail, document)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			saved_at = EXCLUDED.saved_at,
			item_count = EXCLUDED.item_count,
			thumbnail = EXCLUDED.thumbnail,
			document = EXCLUDED.document`,
		d.ID, d.Name, d.Timestamp, len(d.Furniture), d.Thumbnail, doc)
	if err != nil {
		return fmt.Errorf("save design: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Summary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, saved_at, item_count, thumbnail
		FROM designs ORDER BY saved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list designs: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Name, &s.Timestamp, &s.ItemCount, &s.Thumbnail); err != nil {
			return nil, fmt.Errorf("scan design: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list designs: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (design.Design, error) {
	var doc []byte
	err := r.db.QueryRow(ctx, `SELECT document FROM designs WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return design.Design{}, ErrNotFound
		}
		return design.Design{}, fmt.Errorf("get design: %w", err)
	}
	return DecodeDesign(doc)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM designs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete design: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MemoryRepository keeps encoded designs in memory. It is used when no
// database is configured.
type MemoryRepository struct {
	mu      sync.RWMutex
	designs map[string][]byte
	index   map[string]Summary
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{designs: make(map[string][]byte), index: make(map[string]Summary)}
}

func (r *MemoryRepository) Save(_ context.Context, d design.Design) error {
	doc, err := EncodeDesign(d)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.designs[d.ID] = doc
	r.index[d.ID] = summaryOf(d)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) List(context.Context) ([]Summary, error) {
	r.mu.RLock()
	out := make([]Summary, 0, len(r.index))
	for _, s := range r.index {
		out = append(out, s)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Summary) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (design.Design, error) {
	r.mu.RLock()
	doc, ok := r.designs[id]
	r.mu.RUnlock()
	if !ok {
		return design.Design{}, ErrNotFound
	}
	return DecodeDesign(doc)
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.designs[id]; !ok {
		return ErrNotFound
	}
	delete(r.designs, id)
	delete(r.index, id)
	return nil
}
