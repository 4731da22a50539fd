package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Registers the sqlite driver

	"github.com/conorfennell/failedreviews/internal/decktree"
	"github.com/conorfennell/failedreviews/internal/domain"
)

var sqlBuilder = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

// DB represents a wrapper around a collection database connection.
type DB struct {
	conn *sqlx.DB
}

// Open creates a new database connection to the collection at dsn.
func Open(dsn string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	return &DB{conn: conn}, nil
}

// FileDSN builds a file: URI for the collection at path. The path is
// escaped, so '?' and '#' in directory names stay part of the path.
func FileDSN(path string, readOnly bool) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	if readOnly {
		u.RawQuery = "mode=ro"
	}
	return u.String()
}

// OpenReadOnly opens the collection file at path without write access.
func OpenReadOnly(path string) (*DB, error) {
	return Open(FileDSN(path, true))
}

// Create opens dsn and ensures the collection schema exists.
func Create(ctx context.Context, dsn string) (*DB, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return db, nil
}

// Wrap uses an existing connection.
func Wrap(conn *sqlx.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

type version struct {
	LatestReview int64   `db:"latest_review"`
	Reviews      int64   `db:"reviews"`
	Cards        int64   `db:"cards"`
	DeckSum      float64 `db:"deck_sum"`
	Modified     int64   `db:"modified"`
}

// Version returns a stamp of the collection's data. It changes when reviews
// are logged, cards are added, removed or moved, or the collection's
// modification time is bumped, which covers deck edits.
func (db *DB) Version(ctx context.Context) (string, error) {
	var v version
	err := db.conn.GetContext(ctx, &v, `
		SELECT
			(SELECT coalesce(max(id), 0) FROM revlog) AS latest_review,
			(SELECT count(*) FROM revlog) AS reviews,
			(SELECT count(*) FROM cards) AS cards,
			(SELECT total(did) FROM cards) AS deck_sum,
			(SELECT coalesce(max(mod), 0) FROM col) AS modified
	`)
	if err != nil {
		return "", fmt.Errorf("failed to read collection version: %w", err)
	}
	return fmt.Sprintf("%d-%d-%d-%g-%d", v.LatestReview, v.Reviews, v.Cards, v.DeckSum, v.Modified), nil
}

// Snapshot is a mutually consistent read of the data the report needs.
type Snapshot struct {
	Decks       decktree.Node
	Events      []domain.ReviewEvent
	Assignments map[int64]int64 // card id -> current deck id
}

// Snapshot reads decks, review-type events and card assignments inside a
// single read-only transaction, so all three reflect the same point in time.
func (db *DB) Snapshot(ctx context.Context) (*Snapshot, error) {
	tx, err := db.conn.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot: %w", err)
	}
	// Nothing is written; rolling back only releases the read lock.
	defer tx.Rollback()

	decks, err := loadDecks(ctx, tx)
	if err != nil {
		return nil, err
	}
	events, err := loadEvents(ctx, tx, domain.Review)
	if err != nil {
		return nil, err
	}
	assignments, err := loadAssignments(ctx, tx)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Decks:       decks,
		Events:      events,
		Assignments: assignments,
	}, nil
}

// loadDecks prefers the legacy JSON blob and falls back to the decks table
// when the blob names no decks.
func loadDecks(ctx context.Context, tx *sqlx.Tx) (decktree.Node, error) {
	var blobs []string
	if err := tx.SelectContext(ctx, &blobs, `SELECT decks FROM col ORDER BY id LIMIT 1`); err != nil {
		return decktree.Node{}, fmt.Errorf("failed to read collection decks: %w", err)
	}
	if len(blobs) > 0 && blobs[0] != "" {
		root, err := decktree.FromJSON([]byte(blobs[0]))
		if err != nil {
			return decktree.Node{}, err
		}
		if len(decktree.Flatten(root)) > 0 {
			return root, nil
		}
	}

	var tables int
	if err := tx.GetContext(ctx, &tables, `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'decks'`); err != nil {
		return decktree.Node{}, fmt.Errorf("failed to look up decks table: %w", err)
	}
	if tables == 0 {
		return decktree.Node{Key: "$"}, nil
	}

	var records []decktree.DeckRecord
	if err := tx.SelectContext(ctx, &records, `SELECT id, name FROM decks ORDER BY id`); err != nil {
		return decktree.Node{}, fmt.Errorf("failed to read decks table: %w", err)
	}
	return decktree.FromDecks(records), nil
}

// loadEvents returns review log entries of the given types, joined with their
// card for the template ordinal. Entries of deleted cards are skipped.
func loadEvents(ctx context.Context, tx *sqlx.Tx, types ...domain.ReviewType) ([]domain.ReviewEvent, error) {
	q := sqlBuilder.
		Select("r.id", "r.cid", "r.type", "r.ease", "c.ord").
		From("revlog r").
		Join("cards c ON c.id = r.cid").
		OrderBy("r.id")
	if len(types) > 0 {
		codes := make([]int, len(types))
		for i, t := range types {
			codes[i] = int(t)
		}
		q = q.Where(squirrel.Eq{"r.type": codes})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build review log query: %w", err)
	}

	var events []domain.ReviewEvent
	if err := tx.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("failed to read review log: %w", err)
	}
	return events, nil
}

func loadAssignments(ctx context.Context, tx *sqlx.Tx) (map[int64]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, did FROM cards`)
	if err != nil {
		return nil, fmt.Errorf("failed to read card assignments: %w", err)
	}
	defer rows.Close()

	assignments := make(map[int64]int64)
	for rows.Next() {
		var cardID, deckID int64
		if err := rows.Scan(&cardID, &deckID); err != nil {
			return nil, fmt.Errorf("failed to scan card assignment row: %w", err)
		}
		assignments[cardID] = deckID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read card assignments: %w", err)
	}
	return assignments, nil
}

// SetLegacyDecks stores the JSON deck blob of a legacy collection and bumps
// the modification time.
func (db *DB) SetLegacyDecks(ctx context.Context, decksJSON string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO col (id, mod, decks) VALUES (1, 1, ?)
		ON CONFLICT(id) DO UPDATE SET decks = excluded.decks, mod = col.mod + 1
	`, decksJSON)
	if err != nil {
		return fmt.Errorf("failed to store legacy decks: %w", err)
	}
	return nil
}

// InsertDeck inserts a row into the modern decks table.
func (db *DB) InsertDeck(ctx context.Context, id int64, name string) error {
	_, err := db.conn.ExecContext(ctx, `INSERT INTO decks (id, name) VALUES (?, ?)`, id, name)
	if err != nil {
		return fmt.Errorf("failed to insert deck %d: %w", id, err)
	}
	return nil
}

// InsertCard inserts a card assigned to deckID.
func (db *DB) InsertCard(ctx context.Context, id, deckID int64, ord int) error {
	_, err := db.conn.ExecContext(ctx, `INSERT INTO cards (id, did, ord) VALUES (?, ?, ?)`, id, deckID, ord)
	if err != nil {
		return fmt.Errorf("failed to insert card %d: %w", id, err)
	}
	return nil
}

// InsertReview appends an entry to the review log. The event's Ord is
// ignored; it always comes from the card.
func (db *DB) InsertReview(ctx context.Context, ev domain.ReviewEvent) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO revlog (id, cid, ease, type)
		VALUES (?, ?, ?, ?)
	`, ev.ID, ev.CardID, int(ev.Ease), int(ev.Type))
	if err != nil {
		return fmt.Errorf("failed to insert review %d: %w", ev.ID, err)
	}
	return nil
}
