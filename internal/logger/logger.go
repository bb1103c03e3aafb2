// Package logger configures the process-wide zerolog logger and carries
// request IDs through contexts.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Options selects level and output. The zero value logs info-level console
// lines without color.
type Options struct {
	Level string // zerolog level name, "info" when empty or unknown
	JSON  bool
	Color bool
	File  string // optional append-only copy of every line
}

// OptionsFromEnv reads LOG_LEVEL, LOG_FORMAT=json, LOG_FILE and ENV=development.
func OptionsFromEnv() Options {
	return Options{
		Level: os.Getenv("LOG_LEVEL"),
		JSON:  os.Getenv("LOG_FORMAT") == "json",
		Color: os.Getenv("ENV") == "development",
		File:  os.Getenv("LOG_FILE"),
	}
}

// Init installs the global logger from the environment.
func Init() {
	opts := OptionsFromEnv()
	log.Logger = New(os.Stdout, opts)
	log.Info().Str("level", zerolog.GlobalLevel().String()).Bool("json", opts.JSON).Msg("Logger initialized")
}

// New builds a logger writing to w and sets the global level from opts.
func New(w io.Writer, opts Options) zerolog.Logger {
	zerolog.TimeFieldFormat = timeFormat
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		return fmt.Sprintf("%-24s", filepath.Base(file)+":"+fmt.Sprint(line))
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := w
	if !opts.JSON {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat, NoColor: !opts.Color}
	}
	if opts.File != "" {
		if f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = io.MultiWriter(out, f)
		}
	}
	return zerolog.New(out).With().Timestamp().Caller().Logger()
}

type requestIDKey struct{}

// NewRequestID returns a short random identifier for log correlation.
func NewRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ForRequest returns the global logger tagged with the context's request ID.
func ForRequest(ctx context.Context) zerolog.Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		return log.Logger.With().Str("requestId", id).Logger()
	}
	return log.Logger
}

// Body logs a payload at debug level, cut at limit bytes.
func Body(l zerolog.Logger, field string, body []byte, limit int) {
	if len(body) == 0 {
		return
	}
	ev := l.Debug()
	if !ev.Enabled() {
		return
	}
	if len(body) > limit {
		body = body[:limit]
		ev = ev.Bool("truncated", true)
	}
	ev.Str(field, string(body)).Msg("Payload")
}
