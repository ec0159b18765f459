package database

import (
	"context"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"

	"gitlab.com/yelinaung/appdb/internal/logger"
)

// newQueryLogTracer logs every statement through the global zerolog logger.
// Bound arguments are never logged; they may carry credentials or user data.
func newQueryLogTracer() *tracelog.TraceLog {
	log := logger.Component("sql")

	return &tracelog.TraceLog{
		Logger: tracelog.LoggerFunc(func(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
			log.WithLevel(zerologLevel(level)).Fields(withoutArgs(data)).Msg(msg)
		}),
		LogLevel: tracelog.LogLevelDebug,
	}
}

func zerologLevel(level tracelog.LogLevel) zerolog.Level {
	switch level {
	case tracelog.LogLevelTrace:
		return zerolog.TraceLevel
	case tracelog.LogLevelDebug:
		return zerolog.DebugLevel
	case tracelog.LogLevelInfo:
		return zerolog.InfoLevel
	case tracelog.LogLevelWarn:
		return zerolog.WarnLevel
	case tracelog.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.NoLevel
	}
}

func withoutArgs(data map[string]any) map[string]any {
	if _, ok := data["args"]; !ok {
		return data
	}

	out := make(map[string]any, len(data)-1)
	for k, v := range data {
		if k != "args" {
			out[k] = v
		}
	}
	return out
}
