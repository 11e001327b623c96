// Package activitylog is the centralized writer and query surface for the
// append-only audit trail.
package activitylog

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/pkg/logctx"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// Application records an event tied to an application.
func (s *Service) Application(ctx context.Context, applicationID uint64, eventType string, eventContext map[string]any, actorUserID *uint64) {
	s.write(ctx, eventType, eventContext, actorUserID, &applicationID, nil)
}

// Member records an event tied to a member, optionally also carrying the
// application reference.
func (s *Service) Member(ctx context.Context, memberID uint64, eventType string, eventContext map[string]any, actorUserID, applicationID *uint64) {
	s.write(ctx, eventType, eventContext, actorUserID, applicationID, &memberID)
}

// System records an event with no entity reference.
func (s *Service) System(ctx context.Context, eventType string, eventContext map[string]any, actorUserID *uint64) {
	s.write(ctx, eventType, eventContext, actorUserID, nil, nil)
}

// write persists one event row. Audit failures are logged but never fail the
// calling operation.
func (s *Service) write(ctx context.Context, eventType string, eventContext map[string]any, actorUserID, applicationID, memberID *uint64) {
	if eventType == "" {
		return
	}

	var encoded datatypes.JSON
	if eventContext != nil {
		raw, err := json.Marshal(eventContext)
		if err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("activity_log_context_encode_failed", "event_type", eventType, "err", err)
		} else {
			encoded = raw
		}
	}

	entry := &models.ActivityLogEntry{
		ApplicationID: applicationID,
		MemberID:      memberID,
		ActorUserID:   actorUserID,
		EventType:     eventType,
		EventContext:  encoded,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("activity_log_write_failed", "event_type", eventType, "err", err)
	}
}

type ScanEntriesRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanEntriesResponse struct {
	Items []*models.ActivityLogEntry `json:"items"`
	Total int64                      `json:"total"`
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

// ScanEntries implements the admin audit listing with filters.
func (s *Service) ScanEntries(ctx context.Context, req *ScanEntriesRequest) (*ScanEntriesResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 50
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.ActivityLogEntry{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count activity entries: %w", err)
	}

	var rows []*models.ActivityLogEntry
	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list activity entries: %w", err)
	}
	return &ScanEntriesResponse{Items: rows, Total: total}, nil
}
