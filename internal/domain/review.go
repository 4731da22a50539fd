package domain

// ReviewType is the kind of presentation recorded in the review log.
type ReviewType int

const (
	Learn    ReviewType = 0
	Review   ReviewType = 1
	Relearn  ReviewType = 2
	Filtered ReviewType = 3
	Manual   ReviewType = 4
)

// Ease is the answer button pressed for a review.
// 1: Again (Incorrect)
// 2: Hard
// 3: Good
// 4: Easy
type Ease int

const (
	Again Ease = 1
	Hard  Ease = 2
	Good  Ease = 3
	Easy  Ease = 4
)

// MillisPerDay converts a window length in days to review ID units.
const MillisPerDay int64 = 24 * 60 * 60 * 1000

// ReviewEvent records a single review of a card.
// ID is the millisecond timestamp of the review and grows monotonically.
type ReviewEvent struct {
	ID     int64      `db:"id"`
	CardID int64      `db:"cid"`
	Type   ReviewType `db:"type"`
	Ease   Ease       `db:"ease"`
	Ord    int        `db:"ord"` // template ordinal of the reviewed card
}

// ReportRow is one (deck, card type) line of the failed reviews report.
type ReportRow struct {
	Deck          string  `json:"deck"`
	Ord           int     `json:"card_type"`
	FailedCards   int     `json:"cards_failed"`
	FailedReviews int     `json:"reviews_failed"`
	OKCards       int     `json:"cards_ok"`
	OKReviews     int     `json:"reviews_ok"`
	Proportion    float64 `json:"proportion"`
}
