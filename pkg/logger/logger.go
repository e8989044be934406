package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog. Every component gets a copy tagged with its
// name in the "m" field.
type Logger struct {
	logger *zerolog.Logger
}

// NewConsole makes a human-readable logger writing to stderr.
// The tag goes into the service column.
func NewConsole(isDebug bool, tag string, noColor bool) *Logger {
	level := zerolog.InfoLevel
	if isDebug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000", NoColor: noColor,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			"s",
			"m",
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{"s", "m"},
	}
	logger := zerolog.New(output).With().Str("s", tag).Str("m", "").Timestamp().Logger()
	return &Logger{logger: &logger}
}

func Default() *Logger { return &Logger{logger: &log.Logger} }

// Discard drops everything.
func Discard() *Logger {
	l := zerolog.Nop()
	return &Logger{logger: &l}
}

// Tag returns a child logger for a named component.
func (l *Logger) Tag(name string) *Logger {
	logger := l.logger.With().Str("m", name).Logger()
	return &Logger{logger: &logger}
}

// Sampled returns a logger that lets through one of every n messages,
// for per-frame events.
func (l *Logger) Sampled(n uint32) *Logger {
	logger := l.logger.Sample(&zerolog.BasicSampler{N: n})
	return &Logger{logger: &logger}
}

func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.logger.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }

// Fatal logs with fatal level, Msg then calls os.Exit(1).
func (l *Logger) Fatal() *zerolog.Event { return l.logger.Fatal() }
