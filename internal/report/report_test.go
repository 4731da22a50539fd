package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/failedreviews/internal/decktree"
	"github.com/conorfennell/failedreviews/internal/domain"
	"github.com/conorfennell/failedreviews/internal/failures"
	"github.com/conorfennell/failedreviews/internal/storage"
	"github.com/conorfennell/failedreviews/internal/testutil"
)

const day = domain.MillisPerDay

type countingSource struct {
	snap    *storage.Snapshot
	version string
	err     error
	calls   int
}

func (c *countingSource) Snapshot(ctx context.Context) (*storage.Snapshot, error) {
	c.calls++
	return c.snap, c.err
}

func (c *countingSource) Version(ctx context.Context) (string, error) {
	return c.version, c.err
}

func fixtureSnapshot() *storage.Snapshot {
	return &storage.Snapshot{
		Decks: decktree.FromDecks([]decktree.DeckRecord{{ID: 1, Name: "Default"}}),
		Events: []domain.ReviewEvent{
			{ID: 10 * day, CardID: 1, Type: domain.Review, Ease: domain.Again},
			{ID: 11 * day, CardID: 1, Type: domain.Review, Ease: domain.Good},
			{ID: 12 * day, CardID: 2, Type: domain.Review, Ease: domain.Good},
		},
		Assignments: map[int64]int64{1: 1, 2: 1},
	}
}

func TestServiceRunAgainstCollection(t *testing.T) {
	ctx := context.Background()
	_, db := testutil.NewTestCollection(t)
	require.NoError(t, db.SetLegacyDecks(ctx, `{"1": {"name": "Default"}, "2": {"name": "Spanish"}}`))
	testutil.SeedCards(t, db,
		testutil.Card{ID: 1, DeckID: 1, Ord: 0, Reviews: []domain.ReviewEvent{
			testutil.Review(1*day, domain.Again),
			testutil.Review(2*day, domain.Again),
			testutil.Review(3*day, domain.Good),
		}},
		testutil.Card{ID: 2, DeckID: 2, Ord: 1, Reviews: []domain.ReviewEvent{
			testutil.Review(4*day, domain.Again),
			testutil.Review(5*day, domain.Good),
		}},
	)

	svc := NewService(db, nil, nil, nil)
	rep, err := svc.Run(ctx, 30)
	require.NoError(t, err)

	assert.Equal(t, 30, rep.Days)
	assert.Equal(t, "good", rep.Pass)
	assert.Equal(t, 5*day, rep.Anchor)
	assert.True(t, rep.HasReviews())
	assert.Equal(t, time.UnixMilli(5*day).UTC(), rep.LatestReview())
	assert.Equal(t, []domain.ReportRow{
		{Deck: "Default", Ord: 0, FailedCards: 1, FailedReviews: 2, OKCards: 1, OKReviews: 1, Proportion: 1.0 / 3.0},
		{Deck: "Spanish", Ord: 1, FailedCards: 1, FailedReviews: 1, OKCards: 1, OKReviews: 1, Proportion: 0.5},
	}, rep.Rows)
	assert.Len(t, rep.Fingerprint, 64)

	// a two day window only keeps Spanish
	rep, err = svc.Run(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rep.Rows, 1)
	assert.Equal(t, "Spanish", rep.Rows[0].Deck)
}

func TestServiceRunEmptyCollection(t *testing.T) {
	_, db := testutil.NewTestCollection(t)

	rep, err := NewService(db, nil, nil, nil).Run(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, rep.HasReviews())
	assert.Empty(t, rep.Rows)
}

func TestServiceRunInvalidWindow(t *testing.T) {
	src := &countingSource{snap: fixtureSnapshot()}

	_, err := NewService(src, nil, nil, nil).Run(context.Background(), 0)
	assert.ErrorIs(t, err, failures.ErrInvalidWindow)
	assert.Equal(t, 0, src.calls, "invalid window must not touch the collection")
}

func TestServiceRunSourceError(t *testing.T) {
	ioErr := errors.New("database is locked")
	src := &countingSource{err: ioErr}

	_, err := NewService(src, nil, nil, nil).Run(context.Background(), 7)
	assert.ErrorIs(t, err, ioErr)
}

func TestServiceRunUsesCache(t *testing.T) {
	src := &countingSource{snap: fixtureSnapshot()}
	svc := NewService(src, &failures.Aggregator{Pass: failures.PassGoodOrBetter}, NewCache(time.Minute), nil)

	first, err := svc.Run(context.Background(), 7)
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), 7)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, "good_or_better", first.Pass)

	_, err = svc.Run(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls, "a different window is a different cache entry")

	src.version = "v2"
	third, err := svc.Run(context.Background(), 7)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 3, src.calls, "a new collection version bypasses the cache")
}

func TestServiceRunCachedSeesNewReviews(t *testing.T) {
	ctx := context.Background()
	_, db := testutil.NewTestCollection(t)
	require.NoError(t, db.SetLegacyDecks(ctx, `{"1": {"name": "Default"}}`))
	testutil.SeedCards(t, db, testutil.Card{ID: 1, DeckID: 1, Reviews: []domain.ReviewEvent{
		testutil.Review(1*day, domain.Again),
		testutil.Review(2*day, domain.Good),
	}})
	svc := NewService(db, nil, NewCache(time.Hour), nil)

	first, err := svc.Run(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 2*day, first.Anchor)
	require.Len(t, first.Rows, 1)
	assert.Equal(t, 1, first.Rows[0].FailedReviews)

	require.NoError(t, db.InsertReview(ctx, domain.ReviewEvent{ID: 3 * day, CardID: 1, Type: domain.Review, Ease: domain.Again}))

	second, err := svc.Run(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 3*day, second.Anchor)
	require.Len(t, second.Rows, 1)
	assert.Equal(t, 2, second.Rows[0].FailedReviews)
	assert.InDelta(t, 1.0/3.0, second.Rows[0].Proportion, 1e-9)
	assert.NotEqual(t, first.Fingerprint, second.Fingerprint)
}

func TestServiceRunVersionError(t *testing.T) {
	ioErr := errors.New("database is locked")
	src := &countingSource{err: ioErr}

	_, err := NewService(src, nil, NewCache(time.Minute), nil).Run(context.Background(), 7)
	assert.ErrorIs(t, err, ioErr)
	assert.Equal(t, 0, src.calls)
}

func TestServiceRunReviewAtEpoch(t *testing.T) {
	snap := fixtureSnapshot()
	snap.Events = []domain.ReviewEvent{
		{ID: -day, CardID: 1, Type: domain.Review, Ease: domain.Again},
		{ID: 0, CardID: 1, Type: domain.Review, Ease: domain.Good},
	}

	rep, err := NewService(&countingSource{snap: snap}, nil, nil, nil).Run(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, rep.HasReviews(), "an anchor of 0 is still a review")
	assert.Equal(t, int64(0), rep.Anchor)
	assert.Len(t, rep.Rows, 1)
}

func TestCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache(time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	c.Set("b", 2)
	assert.NotContains(t, c.cache, "a", "expired entries are evicted on write")

	c.Clear()
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestFingerprint(t *testing.T) {
	base := &Report{Days: 7, Pass: "good", Anchor: 99, Rows: []domain.ReportRow{
		{Deck: "Default", Ord: 0, FailedCards: 1, FailedReviews: 2, OKCards: 3, OKReviews: 4},
	}}
	same := &Report{Days: 7, Pass: "good", Anchor: 99, Rows: []domain.ReportRow{
		{Deck: "Default", Ord: 0, FailedCards: 1, FailedReviews: 2, OKCards: 3, OKReviews: 4},
	}}
	changed := &Report{Days: 7, Pass: "good", Anchor: 99, Rows: []domain.ReportRow{
		{Deck: "Default", Ord: 0, FailedCards: 1, FailedReviews: 3, OKCards: 3, OKReviews: 4},
	}}

	assert.Equal(t, Fingerprint(base), Fingerprint(same))
	assert.NotEqual(t, Fingerprint(base), Fingerprint(changed))
	assert.Equal(t, "7\tgood\t99\nDefault\t0\t1\t2\t3\t4", Normalize(base))
}
