// Package monitoring holds the swappable package-level logger used by
// the capture pipeline. Hot paths keep logging out entirely; everything
// else goes through Logf so tests and embedders can redirect or mute it.
package monitoring

import "log"

// Logf is the pipeline diagnostic logger. It defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
