// Package logging configures the logrus logger used by cfproxy.
package logging

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to stdout, or appending to the file at path
// when path is non-empty. An unknown level falls back to info. The file stays
// open for the life of the process.
func New(path, level string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, levelErr := logrus.ParseLevel(level)
	if levelErr != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		log.SetOutput(f)
		log.Infof("logging to file %s with level %s", path, lvl)
	} else {
		log.Infof("logging to stdout with level %s", lvl)
	}

	if levelErr != nil {
		log.Warnf("unknown log level %q, using %s", level, lvl)
	}
	return log, nil
}
