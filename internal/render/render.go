// Package render writes a computed report in one of the supported output
// formats.
package render

import (
	"embed"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/conorfennell/failedreviews/internal/report"
)

//go:embed templates/*.html
var templateFiles embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"proportion": formatProportion,
}).ParseFS(templateFiles, "templates/*.html"))

// Format names an output format.
type Format string

const (
	Text Format = "text"
	JSON Format = "json"
	CSV  Format = "csv"
	HTML Format = "html"
)

var header = []string{"Deck", "Card type", "Cards failed", "Reviews failed", "Cards ok", "Reviews ok", "Proportion"}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case Text, JSON, CSV, HTML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Write renders rep to w.
func Write(w io.Writer, f Format, rep *report.Report) error {
	switch f {
	case Text:
		return writeText(w, rep)
	case JSON:
		return writeJSON(w, rep)
	case CSV:
		return writeCSV(w, rep)
	case HTML:
		return Page(w, rep)
	}
	return fmt.Errorf("unknown output format %q", f)
}

// Page writes a standalone HTML page for rep.
func Page(w io.Writer, rep *report.Report) error {
	return templates.ExecuteTemplate(w, "report_page", rep)
}

func formatProportion(p float64) string {
	return strconv.FormatFloat(p, 'f', 4, 64)
}

func fields(rep *report.Report) [][]string {
	out := make([][]string, 0, len(rep.Rows))
	for _, row := range rep.Rows {
		out = append(out, []string{
			row.Deck,
			strconv.Itoa(row.Ord),
			strconv.Itoa(row.FailedCards),
			strconv.Itoa(row.FailedReviews),
			strconv.Itoa(row.OKCards),
			strconv.Itoa(row.OKReviews),
			formatProportion(row.Proportion),
		})
	}
	return out
}

// errWriter remembers the first write error so a sequence of writes can be
// checked once.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

func writeText(w io.Writer, rep *report.Report) error {
	ew := &errWriter{w: w}
	fmt.Fprintf(ew, "Failed reviews within the last %d days since the last review", rep.Days)
	if rep.HasReviews() {
		fmt.Fprintf(ew, " (%s)", rep.LatestReview().Format("2006-01-02 15:04 MST"))
	}
	fmt.Fprint(ew, "\n\n")

	tw := tabwriter.NewWriter(ew, 0, 0, 2, ' ', 0)
	writeTabbed(tw, header)
	for _, f := range fields(rep) {
		writeTabbed(tw, f)
	}
	tw.Flush()
	if len(rep.Rows) == 0 {
		fmt.Fprintln(ew, "\nNo deck has both failed and passed reviews in this window.")
	}
	if ew.err != nil {
		return fmt.Errorf("failed to write report: %w", ew.err)
	}
	return nil
}

func writeTabbed(w io.Writer, cols []string) {
	for i, c := range cols {
		if i > 0 {
			io.WriteString(w, "\t")
		}
		io.WriteString(w, c)
	}
	io.WriteString(w, "\n")
}

func writeJSON(w io.Writer, rep *report.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, rep *report.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := cw.WriteAll(fields(rep)); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
