package services

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/soaringjerry/Wellbeing/internal/catalog"
)

// ExportWideCSV renders one row per completed assessment with a column per category.
func ExportWideCSV(list []*Assessment) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := writeWideCSV(buf, list); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeWideCSV(out io.Writer, list []*Assessment) error {
	order := catalog.CategoryOrder()
	w := csv.NewWriter(out)
	header := []string{"assessment_id", "started_at", "completed_at"}
	for _, c := range order {
		header = append(header, string(c))
	}
	header = append(header, "overall_score")
	if err := w.Write(header); err != nil {
		return err
	}
	for _, a := range list {
		row := make([]string, 0, len(header))
		row = append(row, a.ID, formatTime(a.StartedAt), formatTime(a.Date))
		for _, c := range order {
			row = append(row, strconv.Itoa(a.Scores[c]))
		}
		row = append(row, strconv.Itoa(a.OverallScore))
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ExportLongCSV renders one row per stored answer, in catalog order.
func ExportLongCSV(list []*Assessment) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := writeLongCSV(buf, list); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeLongCSV(out io.Writer, list []*Assessment) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"assessment_id", "completed_at", "category", "question_id", "rating"}); err != nil {
		return err
	}
	for _, a := range list {
		for _, q := range catalog.All() {
			v, ok := a.Answers[q.ID]
			if !ok {
				continue
			}
			rec := []string{a.ID, formatTime(a.Date), string(q.Category), q.ID, strconv.Itoa(v)}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
