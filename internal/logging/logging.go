// Package logging configures the process-wide structured logger every
// other package logs through.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// New builds a *logrus.Logger writing to stderr, with colored formatting
// disabled when stderr isn't a terminal (e.g. under a supervisor or in
// tests).
func New() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		DisableColors:   !term.IsTerminal(int(os.Stderr.Fd())),
		TimestampFormat: "15:04:05.000",
	})
	return log
}
