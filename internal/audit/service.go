package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"time"
)

// RepositoryPort is the storage contract.
type RepositoryPort interface {
	Window(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error)
}

// Service pages through the audit trail.
type Service struct {
	repo RepositoryPort
}

// NewService creates a timeline service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of entries. One extra row is fetched to tell
// whether a next page exists.
func (s *Service) Timeline(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	if err := checkRange(filters); err != nil {
		return Result{}, err
	}
	page, pageSize := filters.Page, filters.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.Window(ctx, filters, (page-1)*pageSize, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := Paging{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Items: rows, Paging: paging}, nil
}

// Export returns every matching entry up to MaxExportRows.
func (s *Service) Export(ctx context.Context, filters Filters) ([]Entry, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if err := checkRange(filters); err != nil {
		return nil, err
	}
	return s.repo.Window(ctx, filters, 0, MaxExportRows)
}

func checkRange(filters Filters) error {
	if filters.From.IsZero() || filters.To.IsZero() {
		return nil
	}
	if filters.From.After(filters.To) || filters.To.Sub(filters.From) > MaxRange {
		return ErrInvalidRange
	}
	return nil
}

// WriteCSV serialises entries with timestamps rendered in loc.
func WriteCSV(w io.Writer, entries []Entry, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"ID", "At", "Actor", "Action", "Entity", "Entity ID"}); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writer.Write([]string{
			strconv.FormatInt(e.ID, 10),
			e.At.In(loc).Format(time.RFC3339),
			e.Actor,
			e.Action,
			e.Entity,
			e.EntityID,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
