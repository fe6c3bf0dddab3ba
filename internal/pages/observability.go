package pages

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// BundleEvent captures lightweight execution telemetry for a page bundle.
type BundleEvent struct {
	Name      string
	Duration  time.Duration
	Success   bool
	Err       error
	Fields    map[string]any
	StartedAt time.Time
}

// BundleObserver receives bundle execution events.
type BundleObserver interface {
	ObserveBundle(ctx context.Context, event BundleEvent)
}

// NoopBundleObserver ignores all events.
type NoopBundleObserver struct{}

func (NoopBundleObserver) ObserveBundle(context.Context, BundleEvent) {}

type logBundleObserver struct {
	logger *slog.Logger
}

// NewLogBundleObserver writes page bundle events to the provided writer.
func NewLogBundleObserver(w io.Writer) BundleObserver {
	if w == nil {
		return NoopBundleObserver{}
	}
	return &logBundleObserver{
		logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
}

func (o *logBundleObserver) ObserveBundle(ctx context.Context, event BundleEvent) {
	attrs := make([]any, 0, 8+len(event.Fields)*2)
	attrs = append(attrs,
		"bundle", event.Name,
		"duration_ms", event.Duration.Milliseconds(),
		"success", event.Success,
	)
	for k, v := range event.Fields {
		attrs = append(attrs, k, v)
	}
	if event.Err != nil {
		attrs = append(attrs, "error", event.Err.Error())
		o.logger.ErrorContext(ctx, "page_bundle", attrs...)
		return
	}
	o.logger.InfoContext(ctx, "page_bundle", attrs...)
}

func bundleObserverOrNoop(observers []BundleObserver) BundleObserver {
	for _, obs := range observers {
		if obs != nil {
			return obs
		}
	}
	return NoopBundleObserver{}
}
