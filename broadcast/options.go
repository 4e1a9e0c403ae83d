package broadcast

import (
	"log/slog"

	"github.com/xraph/thermal/event"
)

// Option configures an Extension.
type Option func(*Extension)

// WithSubjectPrefix sets the subject prefix.
func WithSubjectPrefix(prefix string) Option {
	return func(e *Extension) {
		if prefix != "" {
			e.prefix = prefix
		}
	}
}

// WithKinds restricts publishing to the given event kinds.
func WithKinds(kinds ...event.Kind) Option {
	return func(e *Extension) {
		e.kinds = make(map[event.Kind]bool, len(kinds))
		for _, k := range kinds {
			e.kinds[k] = true
		}
	}
}

// WithLogger sets the logger for the extension.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = logger
	}
}
