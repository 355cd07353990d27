package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gpbmt-org/gpbmt/internal/shared"
)

// Reader lists stored logs.
type Reader interface {
	Count(ctx context.Context, f Filters) (int, error)
	List(ctx context.Context, f Filters) ([]Log, error)
}

// Service serves audit log listings.
type Service struct {
	repo Reader
}

// NewService constructs a Service.
func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

// List returns one page of logs and the pagination metadata.
func (s *Service) List(ctx context.Context, f Filters) ([]Log, shared.Pagination, error) {
	f.Page, f.Limit = shared.ClampPage(f.Page, f.Limit)

	var (
		logs  []Log
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		logs, err = s.repo.List(gctx, f)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, shared.Pagination{}, err
	}
	return logs, shared.NewPagination(f.Page, f.Limit, total), nil
}

// ExportCSV renders every log matching f, up to one page of MaxPageSize rows
// per call.
func (s *Service) ExportCSV(ctx context.Context, f Filters) ([]byte, error) {
	f.Limit = shared.MaxPageSize
	f.Page, f.Limit = shared.ClampPage(f.Page, f.Limit)
	logs, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"created_at", "user_email", "action", "entity_type", "entity_id", "ip_address"}); err != nil {
		return nil, fmt.Errorf("audit: write csv: %w", err)
	}
	for _, l := range logs {
		record := []string{l.CreatedAt.UTC().Format(time.RFC3339), l.UserEmail, l.Action, l.EntityType, l.EntityID, l.IPAddress}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("audit: write csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("audit: write csv: %w", err)
	}
	return buf.Bytes(), nil
}
