package logging

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/rollbar/rollbar-go"

	"connected/internal/config"
)

// Reporter sends one error-level record to an error tracker
type Reporter func(level slog.Level, msg string, extras map[string]interface{})

// ConfigureRollbar sets the global rollbar client and returns a Reporter bound to it
func ConfigureRollbar(cfg *config.LogConfig) Reporter {
	rollbar.SetToken(cfg.RollbarToken)
	rollbar.SetEnvironment(cfg.Environment)
	if host, err := os.Hostname(); err == nil {
		rollbar.SetServerHost(host)
	}

	return func(level slog.Level, msg string, extras map[string]interface{}) {
		var err error
		if e, ok := extras["error"].(error); ok {
			err = e
		} else {
			err = errors.New(msg)
		}
		if level > slog.LevelError {
			rollbar.Critical(err, msg, extras)
			return
		}
		rollbar.Error(err, msg, extras)
	}
}

// FlushRollbar waits for queued reports, called on shutdown
func FlushRollbar() {
	rollbar.Wait()
}

// RollbarHandler wraps a slog.Handler and forwards error records to a Reporter
// TECHNICAL DISCOVERY: attributes added through WithAttrs are kept on the wrapper
// so the forwarded extras match what the inner handler prints
type RollbarHandler struct {
	next   slog.Handler
	report Reporter
	attrs  []slog.Attr
	group  string
}

// NewRollbarHandler wraps next
func NewRollbarHandler(next slog.Handler, report Reporter) *RollbarHandler {
	return &RollbarHandler{next: next, report: report}
}

func (h *RollbarHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RollbarHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= slog.LevelError && h.report != nil {
		extras := make(map[string]interface{}, len(h.attrs)+record.NumAttrs())
		for _, attr := range h.attrs {
			extras[h.key(attr.Key)] = attr.Value.Any()
		}
		record.Attrs(func(attr slog.Attr) bool {
			extras[h.key(attr.Key)] = attr.Value.Any()
			return true
		})
		h.report(record.Level, record.Message, extras)
	}
	return h.next.Handle(ctx, record)
}

func (h *RollbarHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, attr := range attrs {
		attr.Key = h.key(attr.Key)
		merged = append(merged, attr)
	}
	return &RollbarHandler{next: h.next.WithAttrs(attrs), report: h.report, attrs: merged, group: h.group}
}

func (h *RollbarHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &RollbarHandler{next: h.next.WithGroup(name), report: h.report, attrs: h.attrs, group: group}
}

func (h *RollbarHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}
