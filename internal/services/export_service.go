package services

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type ExportParams struct {
	OwnerID string
	Format  string
}

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ExportService struct {
	history HistoryReader
	now     func() time.Time
}

func NewExportService(history HistoryReader) *ExportService {
	return &ExportService{history: history, now: time.Now}
}

// ExportCSV renders the owner's history in the requested format ("wide" by default, or "long").
func (s *ExportService) ExportCSV(ctx context.Context, params ExportParams) (*ExportResult, error) {
	if strings.TrimSpace(params.OwnerID) == "" {
		return nil, NewUnauthorizedError("sign in to export history")
	}
	format := params.Format
	if format == "" {
		format = "wide"
	}
	if format != "wide" && format != "long" {
		return nil, NewInvalidError("unsupported format")
	}
	list, err := s.history.ListForOwner(ctx, params.OwnerID)
	if err != nil {
		return nil, err
	}
	var data []byte
	if format == "long" {
		data, err = ExportLongCSV(list)
	} else {
		data, err = ExportWideCSV(list)
	}
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		Filename:    fmt.Sprintf("wellbeing_history_%s_%s.csv", format, s.now().UTC().Format("20060102")),
		ContentType: "text/csv; charset=utf-8",
		Data:        data,
	}, nil
}
