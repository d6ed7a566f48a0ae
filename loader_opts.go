package codeload

import "log/slog"

// Option configures a Loader during construction.
type Option func(*Loader)

// WithParent sets the parent resolver consulted before the loader's
// own classpath. The reference is non-owning: the parent's lifetime is
// managed by the caller, and the loader only reads from it.
func WithParent(parent ClassResolver) Option {
	return func(l *Loader) {
		l.parent = parent
	}
}

// WithLogger sets the logger for debug output. A nil logger discards
// all output.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}
