package mailboxer

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/mailboxer/store"
)

// ReclaimOptions controls one orphan sweep.
type ReclaimOptions struct {
	// BatchSize is the number of conversations read per page.
	// Zero uses the service's WithReclaimBatchSize value.
	BatchSize int
	// MaxScanned stops the sweep after this many conversations. Zero scans all.
	MaxScanned int
	// GracePeriod skips conversations created less than this long ago.
	// Zero uses the service's WithReclaimGracePeriod value.
	GracePeriod time.Duration
}

// ReclaimResult reports what a sweep did.
type ReclaimResult struct {
	Scanned   int
	Destroyed int
	// Skipped counts conversations still inside the grace period.
	Skipped int
	// Interrupted is set when the context ended the sweep early.
	Interrupted bool
}

// ReclaimOrphans destroys every conversation whose participants have all
// deleted it. MarkAsDeleted already does this for the caller's
// conversation; the sweep catches orphans left when two participants
// delete concurrently and neither sees the other's change.
//
// Call it periodically, or use StartReclaimer:
//
//	go svc.StartReclaimer(ctx, time.Hour)
func (s *Service) ReclaimOrphans(ctx context.Context, opts ReclaimOptions) (*ReclaimResult, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = s.opts.reclaimBatchSize
	}

	grace := opts.GracePeriod
	if grace <= 0 {
		grace = s.opts.reclaimGracePeriod
	}
	// A conversation row can exist before its first message on backends
	// without transactions.
	cutoff := s.now().Add(-grace)

	result := &ReclaimResult{}
	offset := 0
	for {
		if ctx.Err() != nil {
			result.Interrupted = true
			return result, ctx.Err()
		}

		page, err := s.store.ListConversations(ctx, nil, store.ListOptions{
			Limit:     batch,
			Offset:    offset,
			SortOrder: SortAsc,
		})
		if err != nil {
			return result, fmt.Errorf("list conversations: %w", mapStoreError(err))
		}

		destroyed := 0
		for _, data := range page {
			if opts.MaxScanned > 0 && result.Scanned >= opts.MaxScanned {
				return result, nil
			}
			result.Scanned++
			if data.CreatedAt.After(cutoff) {
				result.Skipped++
				continue
			}

			c := &Conversation{svc: s, data: data}
			orphaned, err := c.IsOrphaned(ctx)
			if err != nil {
				return result, fmt.Errorf("check conversation %s: %w", data.ID, err)
			}
			if !orphaned {
				continue
			}
			ok, err := s.destroyConversation(ctx, data.ID)
			if err != nil {
				return result, fmt.Errorf("destroy conversation %s: %w", data.ID, err)
			}
			if ok {
				destroyed++
				result.Destroyed++
			}
		}

		if len(page) < batch {
			break
		}
		// Destroyed rows no longer occupy the offset range.
		offset += len(page) - destroyed
	}

	if result.Destroyed > 0 {
		s.logger.Info("reclaimed orphaned conversations",
			"scanned", result.Scanned,
			"destroyed", result.Destroyed)
	}
	return result, nil
}

// StartReclaimer runs ReclaimOrphans every interval until ctx is done or
// the service is closed. It blocks; run it in its own goroutine.
func (s *Service) StartReclaimer(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.IsConnected() {
				return
			}
			if _, err := s.ReclaimOrphans(ctx, ReclaimOptions{}); err != nil && ctx.Err() == nil {
				s.logger.Warn("orphan sweep failed", "error", err)
			}
		}
	}
}
