package ports

import "time"

// Logger is the structured logging capability injected into services.
type Logger interface {
	Info(message string, fields map[string]any)
	Warn(message string, fields map[string]any)
	Error(message string, fields map[string]any)

	// With returns a logger that adds fields to every entry.
	With(fields map[string]any) Logger

	// Timer starts measuring an operation named name.
	Timer(name string) Timer
}

// Timer measures one operation.
type Timer interface {
	// Stop logs the elapsed time with fields and returns it.
	Stop(fields map[string]any) time.Duration
}
