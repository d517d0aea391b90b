package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/warp/incentive-engine/payout"
)

const (
	keySchedule       = "schedule"
	keyRules          = "visibility_rules"
	keyContractPrefix = "contract:"
	keyAliasPrefix    = "alias:"
)

// Defaults.
const (
	DefaultScheduleTTL = 5 * time.Minute
	DefaultRulesTTL    = 5 * time.Minute
	DefaultContractTTL = 5 * time.Minute
	DefaultAliasTTL    = 30 * time.Minute

	DefaultFetchTimeout = 30 * time.Second
)

// contractEntry caches absence as well as presence.
type contractEntry struct {
	Found  bool
	Config payout.ContractConfig
}

// Source is a payout.Source that caches the schedule, rules, contract
// flags and alias history. A zero TTL disables caching for that table.
type Source struct {
	payout.Source

	Store Store
	Log   logrus.FieldLogger

	ScheduleTTL time.Duration
	RulesTTL    time.Duration
	ContractTTL time.Duration
	AliasTTL    time.Duration

	// FetchTimeout bounds a shared backing fetch, which outlives the
	// caller that started it.
	FetchTimeout time.Duration

	group singleflight.Group

	// Now is the clock; tests replace it.
	Now func() time.Time

	// Per-contract and per-id keys still live, with their expiry, for
	// Invalidate. Expired ones are pruned by Sweep.
	keysMu sync.Mutex
	keys   map[string]time.Time
}

// Sweeper is a Store that can drop its expired entries eagerly.
type Sweeper interface {
	Sweep() int
}

var _ payout.Source = (*Source)(nil)

// NewSource wraps src with the default TTLs.
func NewSource(src payout.Source, store Store, log logrus.FieldLogger) *Source {
	return &Source{
		Source:      src,
		Store:       store,
		Log:         log,
		ScheduleTTL: DefaultScheduleTTL,
		RulesTTL:    DefaultRulesTTL,
		ContractTTL: DefaultContractTTL,
		AliasTTL:    DefaultAliasTTL,

		FetchTimeout: DefaultFetchTimeout,
		Now:          time.Now,
	}
}

// =============================================================================
// CACHED READS
// =============================================================================

func (s *Source) FetchIncentiveSchedule(ctx context.Context) ([]payout.IncentiveScheduleRow, error) {
	if s.ScheduleTTL <= 0 {
		return s.Source.FetchIncentiveSchedule(ctx)
	}
	var rows []payout.IncentiveScheduleRow
	if s.get(ctx, keySchedule, &rows) {
		return rows, nil
	}
	v, err := s.shared(ctx, keySchedule, func(ctx context.Context) (any, error) {
		rows, err := s.Source.FetchIncentiveSchedule(ctx)
		if err != nil {
			return nil, err
		}
		s.set(ctx, keySchedule, rows, s.ScheduleTTL)
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneSchedule(v.([]payout.IncentiveScheduleRow)), nil
}

func (s *Source) FetchVisibilityRules(ctx context.Context) ([]payout.VisibilityRule, error) {
	if s.RulesTTL <= 0 {
		return s.Source.FetchVisibilityRules(ctx)
	}
	var rules []payout.VisibilityRule
	if s.get(ctx, keyRules, &rules) {
		return rules, nil
	}
	v, err := s.shared(ctx, keyRules, func(ctx context.Context) (any, error) {
		rules, err := s.Source.FetchVisibilityRules(ctx)
		if err != nil {
			return nil, err
		}
		s.set(ctx, keyRules, rules, s.RulesTTL)
		return rules, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]payout.VisibilityRule(nil), v.([]payout.VisibilityRule)...), nil
}

func (s *Source) FetchContractConfig(ctx context.Context, contract string) (payout.ContractConfig, error) {
	if s.ContractTTL <= 0 {
		return s.Source.FetchContractConfig(ctx, contract)
	}
	key := keyContractPrefix + strings.TrimSpace(contract)

	var entry contractEntry
	if !s.get(ctx, key, &entry) {
		v, err := s.shared(ctx, key, func(ctx context.Context) (any, error) {
			cfg, err := s.Source.FetchContractConfig(ctx, contract)
			switch {
			case errors.Is(err, payout.ErrContractNotFound):
				e := contractEntry{Found: false}
				s.set(ctx, key, e, s.ContractTTL)
				return e, nil
			case err != nil:
				return nil, err
			}
			e := contractEntry{Found: true, Config: cfg}
			s.set(ctx, key, e, s.ContractTTL)
			return e, nil
		})
		if err != nil {
			return payout.ContractConfig{}, err
		}
		entry = v.(contractEntry)
	}
	if !entry.Found {
		return payout.ContractConfig{}, payout.ErrContractNotFound
	}
	return entry.Config, nil
}

// FetchAliases serves each id from the cache and fetches only the misses,
// in one call. Ids without history are cached as empty.
func (s *Source) FetchAliases(ctx context.Context, platformIDs []string) ([]payout.HistoricalAlias, error) {
	if s.AliasTTL <= 0 || len(platformIDs) == 0 {
		return s.Source.FetchAliases(ctx, platformIDs)
	}

	var out []payout.HistoricalAlias
	var misses []string
	for _, id := range platformIDs {
		var snaps []payout.HistoricalAlias
		if s.get(ctx, keyAliasPrefix+id, &snaps) {
			out = append(out, snaps...)
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := s.Source.FetchAliases(ctx, misses)
	if err != nil {
		return nil, err
	}

	byID := make(map[string][]payout.HistoricalAlias, len(misses))
	for _, id := range misses {
		byID[id] = []payout.HistoricalAlias{}
	}
	for _, a := range fetched {
		byID[a.PlatformID] = append(byID[a.PlatformID], a)
	}
	for _, id := range misses {
		s.set(ctx, keyAliasPrefix+id, byID[id], s.AliasTTL)
	}
	return append(out, fetched...), nil
}

// =============================================================================
// REFRESH
// =============================================================================

// Refresh reloads the schedule and rules from the backing store, replaces
// the cached copies and sweeps expired entries.
func (s *Source) Refresh(ctx context.Context) error {
	s.Sweep()

	rows, err := s.Source.FetchIncentiveSchedule(ctx)
	if err != nil {
		return err
	}
	rules, err := s.Source.FetchVisibilityRules(ctx)
	if err != nil {
		return err
	}
	if s.ScheduleTTL > 0 {
		s.set(ctx, keySchedule, rows, s.ScheduleTTL)
	}
	if s.RulesTTL > 0 {
		s.set(ctx, keyRules, rules, s.RulesTTL)
	}
	return nil
}

// Sweep forgets expired contract and alias keys and, when the Store
// supports it, drops its expired entries. It returns how many keys were
// forgotten.
func (s *Source) Sweep() int {
	now := s.now()
	s.keysMu.Lock()
	n := 0
	for k, exp := range s.keys {
		if !now.Before(exp) {
			delete(s.keys, k)
			n++
		}
	}
	s.keysMu.Unlock()

	if sw, ok := s.Store.(Sweeper); ok {
		if dropped := sw.Sweep(); dropped > 0 {
			s.logger().WithField("entries", dropped).Debug("expired cache entries dropped")
		}
	}
	return n
}

// Invalidate drops every cached table: schedule, rules, and the contract
// and alias entries this Source wrote.
func (s *Source) Invalidate(ctx context.Context) error {
	s.keysMu.Lock()
	keys := make([]string, 0, len(s.keys)+2)
	keys = append(keys, keySchedule, keyRules)
	for k := range s.keys {
		keys = append(keys, k)
	}
	s.keys = nil
	s.keysMu.Unlock()

	return s.Store.Delete(ctx, keys...)
}

// =============================================================================
// HELPERS
// =============================================================================

// shared runs fetch once per key for every concurrent caller. The fetch is
// detached from the caller that started it and bounded by FetchTimeout; a
// caller whose ctx ends stops waiting without failing the others.
func (s *Source) shared(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout())
		defer cancel()
		return fetch(fctx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Source) fetchTimeout() time.Duration {
	if s.FetchTimeout <= 0 {
		return DefaultFetchTimeout
	}
	return s.FetchTimeout
}

func (s *Source) get(ctx context.Context, key string, dst any) bool {
	found, err := s.Store.Get(ctx, key, dst)
	if err != nil {
		s.logger().WithError(err).WithField("key", key).Warn("cache read failed")
		return false
	}
	return found
}

func (s *Source) set(ctx context.Context, key string, value any, ttl time.Duration) {
	if err := s.Store.Set(ctx, key, value, ttl); err != nil {
		s.logger().WithError(err).WithField("key", key).Warn("cache write failed")
		return
	}
	if strings.HasPrefix(key, keyContractPrefix) || strings.HasPrefix(key, keyAliasPrefix) {
		s.keysMu.Lock()
		if s.keys == nil {
			s.keys = make(map[string]time.Time)
		}
		s.keys[key] = s.now().Add(ttl)
		s.keysMu.Unlock()
	}
}

func (s *Source) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Source) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

func cloneSchedule(rows []payout.IncentiveScheduleRow) []payout.IncentiveScheduleRow {
	out := make([]payout.IncentiveScheduleRow, len(rows))
	for i, r := range rows {
		rewards := make(map[payout.Tier]payout.Reward, len(r.Rewards))
		for t, rw := range r.Rewards {
			rewards[t] = rw
		}
		out[i] = payout.IncentiveScheduleRow{Threshold: r.Threshold, Rewards: rewards}
	}
	return out
}
