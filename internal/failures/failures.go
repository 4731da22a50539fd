// Package failures computes the failed reviews report: per deck and card
// type, how many reviews failed versus passed within a trailing window that
// ends at the latest review in the log.
package failures

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/conorfennell/failedreviews/internal/domain"
)

// ErrInvalidWindow is returned when the window is not a positive number of days.
var ErrInvalidWindow = errors.New("window must be a positive number of days")

// PassRule selects which answers count as a passed review.
type PassRule int

const (
	// PassGood counts only Good answers.
	PassGood PassRule = iota
	// PassGoodOrBetter counts Good and Easy answers.
	PassGoodOrBetter
)

// ParsePassRule parses the configuration name of a pass rule.
func ParsePassRule(s string) (PassRule, error) {
	switch s {
	case "", "good":
		return PassGood, nil
	case "good_or_better":
		return PassGoodOrBetter, nil
	}
	return PassGood, fmt.Errorf("unknown pass rule %q", s)
}

func (r PassRule) String() string {
	if r == PassGoodOrBetter {
		return "good_or_better"
	}
	return "good"
}

func (r PassRule) passes(e domain.Ease) bool {
	if r == PassGoodOrBetter {
		return e == domain.Good || e == domain.Easy
	}
	return e == domain.Good
}

// Aggregator builds report rows. The zero value uses PassGood and the
// default logger.
type Aggregator struct {
	Pass   PassRule
	Logger *slog.Logger
}

// Aggregate runs a zero-value Aggregator.
func Aggregate(events []domain.ReviewEvent, assignments map[int64]int64, decks map[int64]string, windowDays int) ([]domain.ReportRow, error) {
	var a Aggregator
	return a.Aggregate(events, assignments, decks, windowDays)
}

// Window returns the anchor (the highest review-type event ID) and the
// exclusive lower bound of the window. ok is false when the log holds no
// review-type events or windowDays is not positive.
func Window(events []domain.ReviewEvent, windowDays int) (anchor, cutoff int64, ok bool) {
	if windowDays <= 0 {
		return 0, 0, false
	}
	for _, ev := range events {
		if ev.Type != domain.Review {
			continue
		}
		if !ok || ev.ID > anchor {
			anchor = ev.ID
			ok = true
		}
	}
	if !ok {
		return 0, 0, false
	}

	days := int64(windowDays)
	if days > math.MaxInt64/domain.MillisPerDay {
		return anchor, math.MinInt64, true
	}
	span := days * domain.MillisPerDay
	if anchor < math.MinInt64+span {
		return anchor, math.MinInt64, true
	}
	return anchor, anchor - span, true
}

type groupKey struct {
	deck string
	ord  int
}

type bucket struct {
	reviews int
	cards   map[int64]struct{}
}

func (b *bucket) add(cardID int64) {
	if b.cards == nil {
		b.cards = make(map[int64]struct{})
	}
	b.reviews++
	b.cards[cardID] = struct{}{}
}

type group struct {
	failed bucket
	ok     bucket
}

// Result is a computed report along with the window it covers. Anchor and
// Cutoff are only meaningful when HasReviews is true.
type Result struct {
	Rows       []domain.ReportRow
	Anchor     int64
	Cutoff     int64
	HasReviews bool
}

// Aggregate reports failed and passed review counts per (deck, card type)
// over review-type events whose ID is greater than anchor - windowDays days.
//
// Rows follow inner-join semantics: a (deck, card type) pair is reported
// only when the window holds at least one failed and at least one passed
// review for it. Hard answers and non-review events are ignored.
//
// Events whose card has no deck assignment, or whose deck is missing from
// decks, are excluded from every count and reported in a single warning.
// Rows are ordered by deck name, then card type.
func (a *Aggregator) Aggregate(events []domain.ReviewEvent, assignments map[int64]int64, decks map[int64]string, windowDays int) ([]domain.ReportRow, error) {
	res, err := a.Compute(events, assignments, decks, windowDays)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// Compute is Aggregate returning the window alongside the rows.
func (a *Aggregator) Compute(events []domain.ReviewEvent, assignments map[int64]int64, decks map[int64]string, windowDays int) (Result, error) {
	if windowDays <= 0 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidWindow, windowDays)
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	anchor, cutoff, ok := Window(events, windowDays)
	if !ok {
		logger.Debug("No review events in log")
		return Result{Rows: []domain.ReportRow{}}, nil
	}

	groups := make(map[groupKey]*group)
	var unassigned int
	missingDecks := make(map[int64]int)

	for _, ev := range events {
		if ev.Type != domain.Review || ev.ID <= cutoff {
			continue
		}
		failed := ev.Ease == domain.Again
		if !failed && !a.Pass.passes(ev.Ease) {
			continue
		}

		deckID, assigned := assignments[ev.CardID]
		if !assigned {
			unassigned++
			continue
		}
		name, known := decks[deckID]
		if !known {
			missingDecks[deckID]++
			continue
		}

		key := groupKey{deck: name, ord: ev.Ord}
		g := groups[key]
		if g == nil {
			g = &group{}
			groups[key] = g
		}
		if failed {
			g.failed.add(ev.CardID)
		} else {
			g.ok.add(ev.CardID)
		}
	}

	if unassigned > 0 || len(missingDecks) > 0 {
		ids := make([]int64, 0, len(missingDecks))
		var excluded int
		for id, n := range missingDecks {
			ids = append(ids, id)
			excluded += n
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		logger.Warn("Excluded reviews with unresolvable deck",
			"unassigned_card_reviews", unassigned,
			"unknown_deck_reviews", excluded,
			"unknown_deck_ids", ids,
		)
	}

	rows := make([]domain.ReportRow, 0, len(groups))
	for key, g := range groups {
		if g.failed.reviews == 0 || g.ok.reviews == 0 {
			continue
		}
		rows = append(rows, domain.ReportRow{
			Deck:          key.deck,
			Ord:           key.ord,
			FailedCards:   len(g.failed.cards),
			FailedReviews: g.failed.reviews,
			OKCards:       len(g.ok.cards),
			OKReviews:     g.ok.reviews,
			Proportion:    float64(g.ok.reviews) / float64(g.ok.reviews+g.failed.reviews),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Deck != rows[j].Deck {
			return rows[i].Deck < rows[j].Deck
		}
		return rows[i].Ord < rows[j].Ord
	})

	logger.Debug("Aggregated failed reviews",
		"anchor", anchor,
		"cutoff", cutoff,
		"groups", len(groups),
		"rows", len(rows),
	)
	return Result{Rows: rows, Anchor: anchor, Cutoff: cutoff, HasReviews: true}, nil
}
