package relay

import (
	"context"
	"log"
	"os"
	"time"
)

const DefaultCleanupInterval = time.Hour

// StartRetention periodically deletes converted files whose TTL has passed.
// It does nothing when no TTL or store is configured.
func (r *Relay) StartRetention(ctx context.Context, interval time.Duration) {
	if r.opts.ArtifactTTL <= 0 || r.store == nil {
		return
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	go r.retentionLoop(ctx, interval)
}

func (r *Relay) retentionLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.SweepExpired(ctx); err != nil {
				log.Printf("cleanup converted files error: %v", err)
			}
		}
	}
}

// SweepExpired removes expired artifacts from disk and the store.
func (r *Relay) SweepExpired(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	expired, err := r.store.Expired(ctx, r.now().UTC())
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, a := range expired {
		if err := os.Remove(a.StoredPath); err != nil && !os.IsNotExist(err) {
			log.Printf("remove converted file %s failed: %v", a.StoredPath, err)
			continue
		}
		if err := os.Remove(renditionPath(a.StoredPath)); err != nil && !os.IsNotExist(err) {
			log.Printf("remove text rendition for %s failed: %v", a.StoredPath, err)
		}
		if err := r.store.Delete(ctx, a.ID); err != nil {
			log.Printf("delete artifact record %d failed: %v", a.ID, err)
			continue
		}
		removed++
	}
	return removed, nil
}
