package logging

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Setup configures the process-wide logger. An unparsable level falls back
// to info; verbose always forces debug.
func Setup(level string, verbose bool) {
	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(true)
	log.SetTimeFormat(time.Kitchen)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warn("Unknown log level, using info", "level", level)
		lvl = log.InfoLevel
	}
	if verbose {
		lvl = log.DebugLevel
	}
	log.SetLevel(lvl)
}
