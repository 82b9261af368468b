package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// redactKeys are the sensitive field names replaced before emission,
// compared case-insensitively at every nesting level.
var redactKeys = map[string]struct{}{
	"api_key":       {},
	"authorization": {},
	"password":      {},
	"secret":        {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
}

// RedactingHandler wraps a slog.Handler and recursively replaces sensitive
// values with "[REDACTED]". Emission must never take the worker down: a
// failing inner handler is downgraded to a minimal fallback record.
type RedactingHandler struct {
	inner slog.Handler
}

// NewRedactingHandler wraps h with the redaction pass.
func NewRedactingHandler(h slog.Handler) *RedactingHandler {
	return &RedactingHandler{inner: h}
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, rec slog.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			emitFallback(rec, fmt.Sprintf("panic: %v", r))
			err = nil
		}
	}()
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	if err := h.inner.Handle(ctx, out); err != nil {
		emitFallback(rec, err.Error())
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	red := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		red = append(red, redactAttr(a))
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(red)}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, "[REDACTED]")
	}
	switch a.Value.Kind() {
	case slog.KindGroup:
		gs := a.Value.Group()
		out := make([]slog.Attr, 0, len(gs))
		for _, g := range gs {
			out = append(out, redactAttr(g))
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	case slog.KindAny:
		return slog.Any(a.Key, redactValue(a.Value.Any()))
	default:
		return a
	}
}

// redactValue walks nested maps and slices carried as slog.Any payloads.
func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if isSensitiveKey(k) {
				out[k] = "[REDACTED]"
			} else {
				out[k] = redactValue(val)
			}
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, val := range t {
			if isSensitiveKey(k) {
				out[k] = "[REDACTED]"
			} else {
				out[k] = val
			}
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = redactValue(val)
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(k string) bool {
	_, ok := redactKeys[strings.ToLower(k)]
	return ok
}

// emitFallback writes a minimal record straight to stdout so a broken
// handler chain still leaves a trace.
func emitFallback(rec slog.Record, cause string) {
	line := fmt.Sprintf(`{"ts":%d,"level":"ERROR","event":"logger.error","orig_event":%q,"error":%q}`,
		rec.Time.UnixMilli(), rec.Message, cause)
	_, _ = fmt.Fprintln(os.Stdout, line)
}

// MaskURL hides credentials embedded in a connection URL for logging.
func MaskURL(raw string) string {
	i := strings.Index(raw, "//")
	if i < 0 {
		return raw
	}
	rest := raw[i+2:]
	at := strings.Index(rest, "@")
	if at < 0 {
		return raw
	}
	auth := rest[:at]
	if c := strings.Index(auth, ":"); c >= 0 {
		auth = auth[:c] + ":***"
	} else {
		auth = "***"
	}
	return raw[:i+2] + auth + rest[at:]
}

var _ slog.Handler = (*RedactingHandler)(nil)
