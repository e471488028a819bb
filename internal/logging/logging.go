// Package logging holds the slog helpers shared by docquery components.
//
// Components take an optional *slog.Logger and scope it once with a
// "component" attribute. Levels are set per component by
// ComponentFilterHandler, which main installs over the output handler.
package logging

import "log/slog"

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Default returns logger, or a discarding logger when it is nil.
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}
