package report

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
)

// Normalize renders the parts of a report that define its content as one
// line per row, so equal reports always normalize identically.
func Normalize(r *Report) string {
	lines := make([]string, 0, len(r.Rows)+1)
	lines = append(lines, strings.Join([]string{
		strconv.Itoa(r.Days),
		r.Pass,
		strconv.FormatInt(r.Anchor, 10),
	}, "\t"))

	for _, row := range r.Rows {
		lines = append(lines, strings.Join([]string{
			row.Deck,
			strconv.Itoa(row.Ord),
			strconv.Itoa(row.FailedCards),
			strconv.Itoa(row.FailedReviews),
			strconv.Itoa(row.OKCards),
			strconv.Itoa(row.OKReviews),
		}, "\t"))
	}
	return strings.Join(lines, "\n")
}

// Fingerprint returns the SHA-256 of the normalized report as a hex string.
func Fingerprint(r *Report) string {
	sum := sha256.Sum256([]byte(Normalize(r)))
	return fmt.Sprintf("%x", sum)
}
