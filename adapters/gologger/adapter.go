package gologger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/goliatone/go-banklink/core"
	glog "github.com/goliatone/go-logger/glog"
)

const LevelTrace = slog.LevelDebug - 4

const LevelFatal = slog.LevelError + 4

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// Provider hands out slog backed loggers tagged with their component name.
type Provider struct {
	base *slog.Logger
}

func NewProvider(base *slog.Logger) *Provider {
	if base == nil {
		base = slog.Default()
	}
	return &Provider{base: base}
}

// NewJSONProvider writes JSON lines to w. Attributes with credential-like
// keys or secret values are redacted by the handler.
func NewJSONProvider(w io.Writer, level string) *Provider {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: redactAttr,
	})
	return NewProvider(slog.New(handler))
}

func (p *Provider) GetLogger(name string) glog.Logger {
	if p == nil || p.base == nil {
		return glog.Nop()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return &Logger{base: p.base}
	}
	return &Logger{base: p.base.With("logger", name)}
}

type Logger struct {
	base *slog.Logger
	ctx  context.Context
	exit func(int)
}

func NewLogger(base *slog.Logger) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{base: base}
}

func (l *Logger) Trace(msg string, args ...any) { l.log(LevelTrace, msg, args) }
func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

func (l *Logger) Fatal(msg string, args ...any) {
	l.log(LevelFatal, msg, args)
	exit := os.Exit
	if l != nil && l.exit != nil {
		exit = l.exit
	}
	exit(1)
}

func (l *Logger) WithContext(ctx context.Context) glog.Logger {
	if l == nil {
		return glog.Nop()
	}
	return &Logger{base: l.base, ctx: ctx, exit: l.exit}
}

func (l *Logger) log(level slog.Level, msg string, args []any) {
	if l == nil || l.base == nil {
		return
	}
	ctx := l.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	l.base.Log(ctx, level, msg, args...)
}

func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redactAttr(_ []string, attr slog.Attr) slog.Attr {
	if attr.Key == slog.LevelKey {
		switch attr.Value.Any() {
		case LevelTrace:
			attr.Value = slog.StringValue("TRACE")
		case LevelFatal:
			attr.Value = slog.StringValue("FATAL")
		}
		return attr
	}
	if attr.Value.Kind() == slog.KindGroup {
		return attr
	}
	redacted := core.RedactSensitiveMap(map[string]any{attr.Key: attr.Value.Any()})
	if value, ok := redacted[attr.Key].(string); ok && value == core.RedactedValue {
		return slog.String(attr.Key, core.RedactedValue)
	}
	return attr
}

var (
	_ glog.Logger         = (*Logger)(nil)
	_ glog.LoggerProvider = (*Provider)(nil)
)
