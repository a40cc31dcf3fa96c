package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ErrFmtHandler decorates records that carry an error under ErrAttrKey.
// It adds the cockroachdb/errors stack trace and, for the typed errors of
// pkg/errors, their structured fields (global step, path, config field...)
// so a failed run can be located from the log line alone.
type ErrFmtHandler struct {
	next slog.Handler
}

// WrapByErrFmtHandler wraps handler with ErrFmtHandler.
func WrapByErrFmtHandler(handler slog.Handler) slog.Handler {
	return &ErrFmtHandler{next: handler}
}

func (h *ErrFmtHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *ErrFmtHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key != ErrAttrKey {
			return true
		}
		err, _ = attr.Value.Any().(error)
		return false
	})
	if err == nil {
		return h.next.Handle(ctx, r)
	}
	if st := stacktraceOf(err); st != "" {
		r.AddAttrs(slog.String(StacktraceAttrKey, st))
	}
	if details := detailsOf(err); len(details) > 0 {
		r.AddAttrs(slog.Any(ErrDetailsAttrKey, details))
	}
	return h.next.Handle(ctx, r)
}

func (h *ErrFmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrFmtHandler{next: h.next.WithAttrs(attrs)}
}

func (h *ErrFmtHandler) WithGroup(g string) slog.Handler {
	return &ErrFmtHandler{next: h.next.WithGroup(g)}
}

func stacktraceOf(err error) string {
	if details := errors.GetSafeDetails(err).SafeDetails; len(details) > 0 {
		return details[0]
	}
	return ""
}

// detailsOf は連鎖中で最初に見つかった zerolog.LogObjectMarshaler の内容を
// map として返します。
func detailsOf(err error) map[string]any {
	var m zerolog.LogObjectMarshaler
	if !errors.As(err, &m) {
		return nil
	}
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	zl.Log().EmbedObject(m).Send()
	var details map[string]any
	if json.Unmarshal(buf.Bytes(), &details) != nil {
		return nil
	}
	return details
}
