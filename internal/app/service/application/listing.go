package application

import (
	"context"
	"fmt"
	"net/mail"
	"path/filepath"
	"strings"

	"gorm.io/gorm/clause"

	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

type ScanApplicationsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanApplicationsResponse struct {
	Items []*models.Application `json:"items"`
	Total int64                 `json:"total"`
}

type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// ScanApplications implements the admin application listing with filters.
func (s *Service) ScanApplications(ctx context.Context, req *ScanApplicationsRequest) (*ScanApplicationsResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 50
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.Application{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count applications: %w", err)
	}

	var rows []*models.Application
	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "submitted_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return &ScanApplicationsResponse{Items: rows, Total: total}, nil
}

// Votes returns the board vote rows for one application, ordered by director.
func (s *Service) Votes(ctx context.Context, applicationID uint64) ([]*models.Vote, error) {
	var rows []*models.Vote
	err := s.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("director_user_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	return rows, nil
}

func validEmail(addr string) bool {
	if addr == "" {
		return false
	}
	_, err := mail.ParseAddress(addr)
	return err == nil
}

func fileExt(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}
