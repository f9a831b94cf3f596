package logging

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// New returns a text logger with full local RFC3339 timestamps. An unknown
// level falls back to info and is reported as an error.
func New(level string, out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.SetLevel(logrus.InfoLevel)
		return log, err
	}
	log.SetLevel(lvl)
	return log, nil
}
