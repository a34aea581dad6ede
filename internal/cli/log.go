// Package cli implements the pkgcode command-line interface.
//
// Commands cover the five library operations: info, code, files, search, and
// popular. All commands support --verbose (-v) for debug-level logging and
// --registry for pointing at an npm-compatible index other than the public
// one.
package cli

import (
	"io"

	"github.com/charmbracelet/log"
)

// newLogger creates a logger with timestamp formatting, writing to w and
// filtering at the given level.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}
