package store

import (
	"context"
	"time"
)

// NotifyOptions tunes the change notifier.
type NotifyOptions struct {
	// Interval is the polling frequency. Default: 200ms.
	Interval time.Duration
	// Debounce is the quiet period after a detected change before the
	// callback fires; further changes inside the window reset it.
	// Default: 500ms.
	Debounce time.Duration
}

func (o *NotifyOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = 200 * time.Millisecond
	}
	if o.Debounce <= 0 {
		o.Debounce = 500 * time.Millisecond
	}
}

// OnChange blocks until ctx is cancelled, polling the kv table for writes
// and invoking fn after each settled burst of changes. The detector is
// MAX(updated_at) over the table rather than the data-version pragma, so
// writes through this same connection are observed too.
func (s *Store) OnChange(ctx context.Context, opts NotifyOptions, fn func()) {
	opts.defaults()
	log := s.logger

	last, err := s.version(ctx)
	if err != nil {
		log.Warn("store: initial version check failed", "error", err)
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	pending := int64(-1)

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case <-ticker.C:
			cur, err := s.version(ctx)
			if err != nil {
				log.Warn("store: version check failed", "error", err)
				continue
			}
			if cur != last && cur != pending {
				pending = cur
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.NewTimer(opts.Debounce)
				debounceCh = debounceTimer.C
			}

		case <-debounceCh:
			debounceCh = nil
			if pending >= 0 {
				last = pending
				pending = -1
				fn()
			}
		}
	}
}

// version reads the change token: the most recent write timestamp in the
// kv table. Zero when the table is empty.
func (s *Store) version(ctx context.Context) (int64, error) {
	var v int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(updated_at), 0) FROM kv`).Scan(&v)
	return v, err
}
