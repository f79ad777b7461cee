// Package logging builds the process logger: a log/slog handler rendering
// terse CLI lines or JSON, exposed to the provisioning code as a logr.Logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Mode controls the handler style used when constructing a logger.
type Mode int

const (
	// ModeCLI renders log records as `LEVEL message key=value`.
	ModeCLI Mode = iota
	// ModeJSON renders log records as JSON.
	ModeJSON
)

// Options configures New.
type Options struct {
	Mode  Mode
	Level slog.Leveler
	// Timestamps prefixes CLI lines with the record time.
	Timestamps bool
}

// New constructs a slog logger writing to w. A nil level means info.
func New(w io.Writer, opts Options) *slog.Logger {
	if w == nil {
		panic("logging: writer must not be nil")
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}

	if opts.Mode == ModeJSON {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(&cliHandler{
		shared:     &sharedWriter{w: w},
		level:      level,
		timestamps: opts.Timestamps,
	})
}

// NewLogr returns logger as a logr.Logger. logr verbosity n maps to slog
// level -n, so V(1) records appear only at debug level.
func NewLogr(logger *slog.Logger) logr.Logger {
	return logr.FromSlogHandler(logger.Handler())
}

// ParseLevel maps a --log-level value onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: use debug, info, warn or error", s)
	}
	return level, nil
}

// sharedWriter serialises writes of every handler derived from one logger.
type sharedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

type cliHandler struct {
	shared     *sharedWriter
	level      slog.Leveler
	timestamps bool

	attrs  []groupedAttr
	groups []string
}

// groupedAttr keeps the groups that were open when the attr was added.
type groupedAttr struct {
	groups []string
	attr   slog.Attr
}

func (h *cliHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *cliHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	b.WriteString(levelLabel(record.Level))
	b.WriteByte(' ')
	if h.timestamps {
		ts := record.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		b.WriteString(ts.UTC().Format(time.RFC3339))
		b.WriteByte(' ')
	}
	b.WriteString(record.Message)

	for _, ga := range h.attrs {
		appendAttr(&b, ga.groups, ga.attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(&b, h.groups, attr)
		return true
	})
	b.WriteByte('\n')

	h.shared.mu.Lock()
	defer h.shared.mu.Unlock()
	_, err := io.WriteString(h.shared.w, b.String())
	return err
}

func (h *cliHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	nh := h.clone()
	groups := append([]string(nil), h.groups...)
	for _, attr := range attrs {
		nh.attrs = append(nh.attrs, groupedAttr{groups: groups, attr: attr})
	}
	return nh
}

func (h *cliHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := h.clone()
	nh.groups = append(nh.groups, name)
	return nh
}

func (h *cliHandler) clone() *cliHandler {
	return &cliHandler{
		shared:     h.shared,
		level:      h.level,
		timestamps: h.timestamps,
		attrs:      append([]groupedAttr(nil), h.attrs...),
		groups:     append([]string(nil), h.groups...),
	}
}

// levelLabel prints levels between the named ones (logr verbosity) as DEBUG.
func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func appendAttr(b *strings.Builder, groups []string, attr slog.Attr) {
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		nested := append(append([]string(nil), groups...), attr.Key)
		for _, a := range value.Group() {
			appendAttr(b, nested, a)
		}
		return
	}
	if attr.Key == "" {
		return
	}

	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(quoteIfNeeded(formatValue(value)))
}

func formatValue(value slog.Value) string {
	switch value.Kind() {
	case slog.KindString:
		return value.String()
	case slog.KindInt64:
		return strconv.FormatInt(value.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(value.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(value.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(value.Bool())
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := value.Any().(error); ok && err != nil {
			return err.Error()
		}
		return fmt.Sprint(value.Any())
	default:
		return value.String()
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
