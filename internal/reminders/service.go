// Package reminders manages the user's scheduled reminder calls. Reads go
// through a local cache that every mutation invalidates.
package reminders

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	basePath    = "/reminders"
	statsPath   = "/reminders/stats"
	cachePrefix = "reminders:"
)

// API is the subset of apiclient.Client used here
type API interface {
	Get(ctx context.Context, path string, query url.Values, out interface{}) error
	Post(ctx context.Context, path string, in, out interface{}) error
	Put(ctx context.Context, path string, in, out interface{}) error
	Delete(ctx context.Context, path string) error
}

// Cache stores decoded responses
type Cache interface {
	Get(key string, v interface{}) (bool, error)
	Set(key string, v interface{}, ttl time.Duration) error
	InvalidatePrefix(prefix string) error
}

type Service struct {
	api    API
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewService returns a reminders service. A nil cache or zero ttl disables
// caching.
func NewService(api API, cache Cache, ttl time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		api:    api,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "reminders").Logger(),
		now:    time.Now,
	}
}

// List returns one page of reminders ordered by call time
func (s *Service) List(ctx context.Context, opts ListOptions) (*Page, error) {
	q := url.Values{}
	if opts.Skip < 0 {
		opts.Skip = 0
	}
	q.Set("skip", strconv.Itoa(opts.Skip))
	q.Set("limit", strconv.Itoa(clampPageSize(opts.Limit)))
	if opts.Status != "" {
		if !opts.Status.Valid() {
			return nil, fmt.Errorf("unknown status filter %q", opts.Status)
		}
		q.Set("status", string(opts.Status))
	}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}

	var page Page
	key := cachePrefix + "list?" + q.Encode()
	if s.cached(key, &page) {
		return &page, nil
	}
	if err := s.api.Get(ctx, basePath, q, &page); err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	if page.Items == nil {
		page.Items = []Reminder{}
	}
	s.store(key, page)
	return &page, nil
}

func (s *Service) Get(ctx context.Context, id int) (*Reminder, error) {
	var r Reminder
	key := cachePrefix + strconv.Itoa(id)
	if s.cached(key, &r) {
		return &r, nil
	}
	if err := s.api.Get(ctx, itemPath(id), nil, &r); err != nil {
		return nil, fmt.Errorf("failed to get reminder %d: %w", id, err)
	}
	s.store(key, r)
	return &r, nil
}

// Stats returns per-status counts across all of the user's reminders
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	key := cachePrefix + "stats"
	if s.cached(key, &st) {
		return &st, nil
	}
	if err := s.api.Get(ctx, statsPath, nil, &st); err != nil {
		return nil, fmt.Errorf("failed to get reminder stats: %w", err)
	}
	s.store(key, st)
	return &st, nil
}

func (s *Service) Create(ctx context.Context, c Create) (*Reminder, error) {
	if err := ValidateCreate(&c, s.now()); err != nil {
		return nil, err
	}

	var r Reminder
	if err := s.api.Post(ctx, basePath, c, &r); err != nil {
		return nil, fmt.Errorf("failed to create reminder: %w", err)
	}
	s.invalidate()

	s.logger.Info().Int("reminder_id", r.ID).Time("date_time", r.DateTime).Msg("Reminder created")
	return &r, nil
}

func (s *Service) Update(ctx context.Context, id int, u Update) (*Reminder, error) {
	if err := ValidateUpdate(&u, s.now()); err != nil {
		return nil, err
	}

	var r Reminder
	if err := s.api.Put(ctx, itemPath(id), u, &r); err != nil {
		return nil, fmt.Errorf("failed to update reminder %d: %w", id, err)
	}
	s.invalidate()

	s.logger.Info().Int("reminder_id", id).Msg("Reminder updated")
	return &r, nil
}

func (s *Service) Delete(ctx context.Context, id int) error {
	if err := s.api.Delete(ctx, itemPath(id)); err != nil {
		return fmt.Errorf("failed to delete reminder %d: %w", id, err)
	}
	s.invalidate()

	s.logger.Info().Int("reminder_id", id).Msg("Reminder deleted")
	return nil
}

func itemPath(id int) string {
	return basePath + "/" + strconv.Itoa(id)
}

func (s *Service) cached(key string, v interface{}) bool {
	if s.cache == nil || s.ttl <= 0 {
		return false
	}
	ok, err := s.cache.Get(key, v)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		return false
	}
	if ok {
		s.logger.Debug().Str("key", key).Msg("Cache hit")
	}
	return ok
}

func (s *Service) store(key string, v interface{}) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	if err := s.cache.Set(key, v, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

func (s *Service) invalidate() {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePrefix(cachePrefix); err != nil {
		s.logger.Warn().Err(err).Msg("Cache invalidation failed")
	}
}
