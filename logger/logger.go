package logger

import (
	"io"
	"os"
	"runtime"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

type DBSQLLogger struct {
	zerolog.Logger
}

// Track is a convenience function to track time spent
func (l *DBSQLLogger) Track(msg string) (string, int64) {
	return msg, nowMillis()
}

// Duration logs a debug message with the time elapsed between the provided start and the current time.
// Use in conjunction with Track.
// e.g. log.Duration(log.Track("my debug message"))
func (l *DBSQLLogger) Duration(msg string, start int64) {
	l.Debug().Msgf("%v elapsed time: %vms", msg, nowMillis()-start)
}

var Logger = &DBSQLLogger{
	zerolog.New(os.Stderr).With().Timestamp().Logger(),
}

// enable pretty printing for interactive terminals and json for production.
func init() {
	// for tty terminal enable pretty logs
	if isatty.IsTerminal(os.Stdout.Fd()) && runtime.GOOS != "windows" {
		Logger = &DBSQLLogger{Logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})}
	} else {
		// UNIX Time is faster and smaller than most timestamps
		// If you set zerolog.TimeFieldFormat to an empty string,
		// logs will write with UNIX time.
		zerolog.TimeFieldFormat = ""
	}
	// by default only log warns or above
	loglvl := zerolog.WarnLevel
	if lvst := os.Getenv("DATABRICKS_LOG_LEVEL"); lvst != "" {
		if lv, err := zerolog.ParseLevel(lvst); err != nil {
			Logger.Error().Msgf("log level %s not recognized", lvst)
		} else {
			loglvl = lv
		}
	}
	Logger = &DBSQLLogger{Logger.Level(loglvl)}
	Logger.Info().Msgf("setting log level to %s", loglvl)
}

// Sets log level. Default is "warn"
// Available levels are: "trace" "debug" "info" "warn" "error" "fatal" "panic" or "disabled"
func SetLogLevel(l string) error {
	if lv, err := zerolog.ParseLevel(l); err != nil {
		return err
	} else {
		Logger = &DBSQLLogger{Logger.Level(lv)}
		return nil
	}
}

// Sets logging output. Default is os.Stderr. If in terminal, pretty logs are enabled.
func SetLogOutput(w io.Writer) {
	Logger = &DBSQLLogger{Logger.Output(w)}
}

// Sets log to trace. -1
// You must call Msg or Msgf to print the log.
func Trace() *zerolog.Event {
	return Logger.Trace()
}

// Sets log to debug. 0
// You must call Msg or Msgf to print the log.
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Sets log to info. 1
// You must call Msg or Msgf to print the log.
func Info() *zerolog.Event {
	return Logger.Info()
}

// Sets log to warn. 2
// You must call Msg or Msgf to print the log.
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Sets log to error. 3
// You must call Msg or Msgf to print the log.
func Error() *zerolog.Event {
	return Logger.Error()
}

// Err starts a new message with error level with err as a field if not nil or with info level if err is nil.
// You must call Msg or Msgf to print the log.
func Err(err error) *zerolog.Event {
	return Logger.Err(err)
}

// WithContext sets the reader id and correlation id to be used as fields in the logger.
func WithContext(readerId string, correlationId string) *DBSQLLogger {
	return &DBSQLLogger{Logger.With().Str("readerId", readerId).Str("corrId", correlationId).Logger()}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
