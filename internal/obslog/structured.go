package obslog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	structuredOnce sync.Once
	structured     *zap.Logger
	structuredDev  bool
)

// SetStructuredMode chooses between zap's development and production
// encoder before the first call to Structured(). It is a no-op after the
// logger has been built.
func SetStructuredMode(development bool) {
	structuredDev = development
}

// Structured returns the process-wide zap logger for machine-readable JSON
// logs, where structured fields (worker id, content hash, CWE id) matter
// more than a human-readable category file. No package in this module
// calls it; the sandbox and analyzer log through the category loggers.
func Structured() *zap.Logger {
	structuredOnce.Do(func() {
		var l *zap.Logger
		var err error
		if structuredDev {
			l, err = zap.NewDevelopment()
		} else {
			l, err = zap.NewProduction()
		}
		if err != nil {
			l = zap.NewNop()
		}
		structured = l
	})
	return structured
}
