/*
identity.go - Display name backfill from the historical alias store

PURPOSE:
  Activity exports sometimes arrive with a blank display name. The alias
  store keeps past snapshots of the names seen for each platform id; the
  resolver fills blank names from the most recent usable snapshot.

ALGORITHM:
  1. Split records into named and unnamed (blank or whitespace name)
  2. Collect distinct platform ids of the unnamed ones; none -> done
  3. Fetch aliases in batches (default 400 ids) with bounded concurrency
  4. Per id: snapshots newest first, slots 1,2,3 within a snapshot; the
     first value that is not a placeholder ("", nan, none, null) wins
  5. No usable name -> "User_" + first 8 characters of the platform id
  6. Write names back onto the unnamed records only

FAILURE SEMANTICS:
  A failed batch is logged and counted; its ids fall through to the
  synthesized name. Resolution never fails the report.

SEE ALSO:
  - report.go: Step 2 of the report sequence
  - store/sqlite/sqlite.go: historico_usuarios lookups
*/
package payout

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultAliasBatchSize keeps each alias query under the store's
	// IN-list limit.
	DefaultAliasBatchSize = 400

	// DefaultAliasConcurrency bounds in-flight alias batches.
	DefaultAliasConcurrency = 4

	// DefaultFallbackPrefixLen is how much of the platform id goes into a
	// synthesized name.
	DefaultFallbackPrefixLen = 8

	fallbackNamePrefix = "User_"
)

var namePlaceholders = map[string]bool{
	"":     true,
	"nan":  true,
	"none": true,
	"null": true,
}

// IsPlaceholderName reports whether a stored name carries no information.
func IsPlaceholderName(name string) bool {
	return namePlaceholders[strings.ToLower(strings.TrimSpace(name))]
}

// FallbackName synthesizes a display name from the platform id.
func FallbackName(platformID string, prefixLen int) string {
	if prefixLen <= 0 {
		prefixLen = DefaultFallbackPrefixLen
	}
	id := []rune(strings.TrimSpace(platformID))
	if len(id) > prefixLen {
		id = id[:prefixLen]
	}
	return fallbackNamePrefix + string(id)
}

// ResolveStats summarizes one resolution pass.
type ResolveStats struct {
	Unnamed       int // records that arrived without a name
	Resolved      int // filled from alias history
	Synthesized   int // filled with FallbackName
	Batches       int
	FailedBatches int
}

// IdentityResolver backfills blank display names.
type IdentityResolver struct {
	Aliases     AliasSource
	BatchSize   int
	Concurrency int
	PrefixLen   int
	Log         logrus.FieldLogger
}

// NewIdentityResolver returns a resolver with default batching.
func NewIdentityResolver(aliases AliasSource, log logrus.FieldLogger) *IdentityResolver {
	return &IdentityResolver{
		Aliases:     aliases,
		BatchSize:   DefaultAliasBatchSize,
		Concurrency: DefaultAliasConcurrency,
		PrefixLen:   DefaultFallbackPrefixLen,
		Log:         log,
	}
}

// Resolve returns a copy of records where every blank display name has been
// filled. Named records are returned unchanged, so running Resolve on an
// already resolved set is a no-op.
func (r *IdentityResolver) Resolve(ctx context.Context, records []StreamerPeriodRecord) ([]StreamerPeriodRecord, ResolveStats) {
	out := make([]StreamerPeriodRecord, len(records))
	copy(out, records)

	var stats ResolveStats
	var unnamed []int
	seen := make(map[string]bool)
	var ids []string
	for i, rec := range out {
		if rec.HasName() {
			continue
		}
		unnamed = append(unnamed, i)
		id := strings.TrimSpace(rec.PlatformID)
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	stats.Unnamed = len(unnamed)
	if len(unnamed) == 0 {
		return out, stats
	}

	names, batches, failed := r.lookup(ctx, ids)
	stats.Batches = batches
	stats.FailedBatches = failed

	for _, i := range unnamed {
		if name, ok := names[strings.TrimSpace(out[i].PlatformID)]; ok {
			out[i].DisplayName = name
			stats.Resolved++
			continue
		}
		out[i].DisplayName = FallbackName(out[i].PlatformID, r.PrefixLen)
		stats.Synthesized++
	}
	return out, stats
}

// lookup fetches all batches and returns the best name per id.
func (r *IdentityResolver) lookup(ctx context.Context, ids []string) (map[string]string, int, int) {
	batchSize := r.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultAliasBatchSize
	}
	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultAliasConcurrency
	}

	var (
		mu     sync.Mutex
		names  = make(map[string]string, len(ids))
		failed int
	)

	if r.Aliases == nil {
		return names, 0, 0
	}

	batches := chunk(ids, batchSize)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for n, batch := range batches {
		n, batch := n, batch
		g.Go(func() error {
			rows, err := r.Aliases.FetchAliases(gctx, batch)
			if err != nil {
				r.logger().WithError(err).WithFields(logrus.Fields{
					"batch":     n,
					"batch_ids": len(batch),
				}).Warn("alias batch failed, falling back to synthesized names")
				mu.Lock()
				failed++
				mu.Unlock()
				// Degrade this batch only; the others keep going.
				return nil
			}
			best := pickNames(rows)
			mu.Lock()
			for id, name := range best {
				names[id] = name
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return names, len(batches), failed
}

func (r *IdentityResolver) logger() logrus.FieldLogger {
	if r.Log == nil {
		return logrus.StandardLogger()
	}
	return r.Log
}

// pickNames chooses the best name per platform id from one batch of
// snapshots: newest snapshot first, then slot order.
func pickNames(rows []HistoricalAlias) map[string]string {
	byID := make(map[string][]HistoricalAlias)
	for _, row := range rows {
		id := strings.TrimSpace(row.PlatformID)
		byID[id] = append(byID[id], row)
	}

	out := make(map[string]string, len(byID))
	for id, snaps := range byID {
		sort.SliceStable(snaps, func(i, j int) bool {
			return snaps[i].LastSeen.After(snaps[j].LastSeen)
		})
	scan:
		for _, snap := range snaps {
			for _, name := range snap.Names {
				if !IsPlaceholderName(name) {
					out[id] = strings.TrimSpace(name)
					break scan
				}
			}
		}
	}
	return out
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
