package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jbcub/studentdir/internal/domain/resolution"
)

// ReportStore keeps the last import report of each chat for /report.
type ReportStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewReportStore creates a ReportStore; reports expire after ttl.
func NewReportStore(c *Cache, ttl time.Duration) *ReportStore {
	return &ReportStore{cache: c, ttl: ttl}
}

func reportKey(chatID int64) string {
	return prefixReport + strconv.FormatInt(chatID, 10)
}

// SaveReport replaces the last report of the chat.
func (s *ReportStore) SaveReport(ctx context.Context, chatID int64, r *resolution.Report) error {
	return s.cache.Set(ctx, reportKey(chatID), r, s.ttl)
}

// LastReport returns the last report of the chat, or nil if none is kept.
func (s *ReportStore) LastReport(ctx context.Context, chatID int64) (*resolution.Report, error) {
	var r resolution.Report
	if err := s.cache.Get(ctx, reportKey(chatID), &r); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}
