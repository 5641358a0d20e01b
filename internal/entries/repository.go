package entries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository persists entries.
type Repository interface {
	// GetByID returns ErrEntryNotFound if the entry does not exist.
	GetByID(ctx context.Context, id string) (*Entry, error)

	// List returns all entries, oldest first.
	List(ctx context.Context) ([]Entry, error)

	// Create returns ErrEntryExists if the ID is taken.
	Create(ctx context.Context, e *Entry) error

	// Update rewrites title, version, data, state and reason.
	Update(ctx context.Context, e *Entry) error

	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository on the config_entries table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectEntry = `
	SELECT id, domain, title, version, data, state, reason, created_at, updated_at
	FROM config_entries`

// GetByID retrieves an entry by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Entry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx, selectEntry+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("querying entry by id: %w", err)
	}
	return e, nil
}

// List retrieves all entries ordered by creation time.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, selectEntry+" ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return out, nil
}

// Create inserts a new entry, setting its timestamps.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	dataJSON, err := marshalData(e.Data)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	if e.State == "" {
		e.State = StateNotLoaded
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO config_entries (id, domain, title, version, data, state, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Domain, e.Title, e.Version, dataJSON, string(e.State), e.Reason,
		e.CreatedAt.Format(time.RFC3339Nano), e.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrEntryExists
		}
		return fmt.Errorf("inserting entry: %w", err)
	}
	return nil
}

// Update writes back the mutable fields of e.
func (r *SQLiteRepository) Update(ctx context.Context, e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	dataJSON, err := marshalData(e.Data)
	if err != nil {
		return err
	}
	e.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		UPDATE config_entries
		SET title = ?, version = ?, data = ?, state = ?, reason = ?, updated_at = ?
		WHERE id = ?`,
		e.Title, e.Version, dataJSON, string(e.State), e.Reason,
		e.UpdatedAt.Format(time.RFC3339Nano), e.ID)
	if err != nil {
		return fmt.Errorf("updating entry: %w", err)
	}
	return expectOneRow(res)
}

// Delete removes an entry.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM config_entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func marshalData(data map[string]any) (string, error) {
	if data == nil {
		return "{}", nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshalling data: %w", err)
	}
	return string(b), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (*Entry, error) {
	var e Entry
	var dataJSON, state, createdAt, updatedAt string

	if err := s.Scan(&e.ID, &e.Domain, &e.Title, &e.Version, &dataJSON, &state, &e.Reason, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(dataJSON), &e.Data); err != nil {
		return nil, fmt.Errorf("unmarshalling data: %w", err)
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	e.State = State(state)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // written by us
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt) //nolint:errcheck // written by us
	return &e, nil
}
