// Package nlog provides the node's single structured logger: every
// component logs through a *logrus.Entry tagged with a "component" field,
// generalising the teacher's bracket-tag log.Printf("[component] ...")
// convention into structured fields instead of string interpolation.
package nlog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logger. Components never call logrus directly;
// they call For(component) to get a tagged entry.
var Logger = logrus.New()

func init() {
	Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
}

// SetLevel parses and applies a level name ("debug", "info", "warn",
// "error"); unknown names fall back to info.
func SetLevel(name string) {
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)
}

// SetOutput redirects log output, used by tests to silence logging.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// For returns a logger entry tagged with the given component name, e.g.
// For("ledger"), For("block_processor"), For("confirming_set").
func For(component string) *logrus.Entry {
	return Logger.WithField("component", component)
}
