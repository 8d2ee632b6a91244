// Package logger defines the structured logging surface shared by the tracking engine.
package logger

// Logger logs a message followed by alternating key/value pairs.
// *pluginapi.LogService satisfies it.
type Logger interface {
	Debug(message string, keyValuePairs ...interface{})
	Info(message string, keyValuePairs ...interface{})
	Warn(message string, keyValuePairs ...interface{})
	Error(message string, keyValuePairs ...interface{})
}

type nop struct{}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nop{}
}

func (nop) Debug(string, ...interface{}) {}
func (nop) Info(string, ...interface{})  {}
func (nop) Warn(string, ...interface{})  {}
func (nop) Error(string, ...interface{}) {}
