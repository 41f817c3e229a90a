package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/strongdm/hoptoad-notifier/internal/config"
	"github.com/strongdm/hoptoad-notifier/pkg/hoptoad"
	"github.com/strongdm/hoptoad-notifier/pkg/hoptoad/buffer"
)

// flusher owns the notifier built from the current config. apply swaps it
// when the config changes.
type flusher struct {
	logger *slog.Logger

	mu       sync.Mutex
	notifier *hoptoad.Notifier
	interval time.Duration
	reset    chan time.Duration
}

func newFlusher(logger *slog.Logger) *flusher {
	return &flusher{
		logger: logger,
		reset:  make(chan time.Duration, 1),
	}
}

// apply builds a notifier for cfg and replaces the current one. The current
// notifier is kept when cfg cannot be applied.
func (f *flusher) apply(cfg *config.Config) error {
	opts := append(cfg.Options(),
		hoptoad.WithLogger(slog.NewLogLogger(f.logger.Handler(), slog.LevelWarn)),
	)
	n, err := hoptoad.New(cfg.StorageRoot, cfg.APIKey(), opts...)
	if err != nil {
		if errors.Is(err, hoptoad.ErrMissingAPIKey) {
			return fmt.Errorf("no API key in $%s: %w", cfg.APIKeyEnv, err)
		}
		return err
	}
	if !n.Enabled() {
		return fmt.Errorf("storage root %s is not usable", cfg.StorageRoot)
	}

	f.mu.Lock()
	old := f.notifier
	f.notifier = n
	changed := f.interval != cfg.FlushInterval
	f.interval = cfg.FlushInterval
	f.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			f.logger.Warn("closing previous notifier", "err", err)
		}
	}
	if changed {
		// Only the latest interval matters.
		select {
		case <-f.reset:
		default:
		}
		select {
		case f.reset <- cfg.FlushInterval:
		default:
		}
	}
	return nil
}

func (f *flusher) current() (*hoptoad.Notifier, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notifier, f.interval
}

// flushOnce attempts every pending notice once and logs what is left.
func (f *flusher) flushOnce(ctx context.Context) error {
	n, _ := f.current()
	if n == nil {
		return errors.New("no notifier configured")
	}
	before, err := n.Pending()
	if err != nil {
		return err
	}
	if err := n.Flush(ctx); err != nil {
		return err
	}
	after, err := n.Pending()
	if err != nil {
		return err
	}
	f.logger.Info("flush complete",
		"delivered", max(before-after, 0),
		"pending", after,
	)
	return nil
}

// loop flushes every interval until ctx is cancelled.
func (f *flusher) loop(ctx context.Context) {
	_, interval := f.current()
	// Drain the reset queued by the initial apply.
	select {
	case <-f.reset:
	default:
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	f.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-f.reset:
			ticker.Reset(d)
			f.logger.Info("flush interval changed", "interval", d)
		case <-ticker.C:
			f.tick(ctx)
		}
	}
}

func (f *flusher) tick(ctx context.Context) {
	if err := f.flushOnce(ctx); err != nil && ctx.Err() == nil {
		f.logger.Error("flush failed", "err", err)
	}
}

func (f *flusher) close() {
	f.mu.Lock()
	n := f.notifier
	f.notifier = nil
	f.mu.Unlock()
	if n != nil {
		n.Close()
	}
}

// listPending writes one line per buffered notice: the handle, the error
// class and the message. Unreadable notices are listed with the reason.
func listPending(w io.Writer, root string) error {
	buf, err := buffer.Open(root)
	if err != nil {
		return err
	}
	handles, err := buf.ListPending()
	if err != nil {
		return err
	}
	for _, h := range handles {
		report, err := readNotice(buf, h)
		if err != nil {
			fmt.Fprintf(w, "%s\t(unreadable: %v)\n", h, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", h, report.ErrorType, report.Message)
	}
	fmt.Fprintf(w, "%d pending\n", len(handles))
	return nil
}

func readNotice(buf *buffer.Buffer, h buffer.Handle) (hoptoad.Report, error) {
	rc, err := buf.Open(h)
	if err != nil {
		return hoptoad.Report{}, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return hoptoad.Report{}, err
	}
	report, _, err := hoptoad.DecodeNotice(data)
	return report, err
}
