// Package logging builds the process logger and adapts it to the key-value
// Logger used by the reminder engine.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the root logger. Console output is used unless json is set.
func New(level string, json bool, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	if !json {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// KV adapts a zerolog.Logger to Info/Warn/Error/Debug calls with alternating
// key-value fields.
type KV struct {
	logger zerolog.Logger
}

// NewKV wraps logger.
func NewKV(logger zerolog.Logger) *KV {
	return &KV{logger: logger}
}

func (l *KV) Info(msg string, fields ...interface{})  { l.write(l.logger.Info(), msg, fields) }
func (l *KV) Warn(msg string, fields ...interface{})  { l.write(l.logger.Warn(), msg, fields) }
func (l *KV) Error(msg string, fields ...interface{}) { l.write(l.logger.Error(), msg, fields) }
func (l *KV) Debug(msg string, fields ...interface{}) { l.write(l.logger.Debug(), msg, fields) }

func (l *KV) write(ev *zerolog.Event, msg string, fields []interface{}) {
	if ev == nil {
		return
	}
	for i := 0; i < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			key = fmt.Sprint(fields[i])
		}
		if i+1 >= len(fields) {
			ev = ev.Interface(key, nil)
			break
		}
		switch v := fields[i+1].(type) {
		case error:
			if key == "error" {
				ev = ev.Err(v)
			} else {
				ev = ev.AnErr(key, v)
			}
		case time.Duration:
			ev = ev.Dur(key, v)
		case time.Time:
			ev = ev.Time(key, v)
		case string:
			ev = ev.Str(key, v)
		case int:
			ev = ev.Int(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}
