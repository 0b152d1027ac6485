// Package logger configures the structured logger shared by the scanner
// components.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	log  *logrus.Logger
	once sync.Once
)

// Fields is re-exported so callers do not import logrus directly
type Fields = logrus.Fields

// New returns the process-wide logger.  Level comes from LOG_LEVEL, output
// goes to stdout and, when LOG_FILE is set, a size-rotated file as well.
func New() *logrus.Logger {
	once.Do(func() {
		log = logrus.New()

		switch os.Getenv("LOG_LEVEL") {
		case "debug":
			log.SetLevel(logrus.DebugLevel)
		case "warn":
			log.SetLevel(logrus.WarnLevel)
		case "error":
			log.SetLevel(logrus.ErrorLevel)
		default:
			log.SetLevel(logrus.InfoLevel)
		}

		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})

		writers := []io.Writer{os.Stdout}

		if logFile := os.Getenv("LOG_FILE"); logFile != "" {
			writers = append(writers, &lumberjack.Logger{
				Filename:   logFile,
				LocalTime:  true,
				Compress:   true,
				MaxSize:    50,
				MaxAge:     7,
				MaxBackups: 3,
			})
		}

		log.SetOutput(io.MultiWriter(writers...))
	})

	return log
}

// WithComponent returns an entry tagged with the component name
func WithComponent(name string) *logrus.Entry {
	return New().WithField("component", name)
}
