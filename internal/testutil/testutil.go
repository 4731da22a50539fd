package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conorfennell/failedreviews/internal/domain"
	"github.com/conorfennell/failedreviews/internal/storage"
)

// Card is a fixture card with the reviews recorded against it.
type Card struct {
	ID      int64
	DeckID  int64
	Ord     int
	Reviews []domain.ReviewEvent
}

// NewTestCollection creates an empty collection file in a temporary
// directory and returns its path along with an open handle.
func NewTestCollection(t *testing.T) (string, *storage.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collection.anki2")
	db, err := storage.Create(context.Background(), storage.FileDSN(path, false))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return path, db
}

// SeedCards inserts cards and their reviews. Review card IDs are taken from
// the enclosing card.
func SeedCards(t *testing.T, db *storage.DB, cards ...Card) {
	t.Helper()
	ctx := context.Background()
	for _, c := range cards {
		require.NoError(t, db.InsertCard(ctx, c.ID, c.DeckID, c.Ord))
		for _, r := range c.Reviews {
			r.CardID = c.ID
			require.NoError(t, db.InsertReview(ctx, r))
		}
	}
}

// Review builds a review-type event.
func Review(id int64, ease domain.Ease) domain.ReviewEvent {
	return domain.ReviewEvent{ID: id, Type: domain.Review, Ease: ease}
}

// MustClose closes a resource and fails the test on error.
func MustClose(t *testing.T, closer interface{ Close() error }) {
	require.NoError(t, closer.Close())
}
