// Package logging defines the narrow logging interface used throughout the
// consensus core, so that packages never import a concrete logging library
// directly.
package logging

import "github.com/sirupsen/logrus"

// Logger is satisfied by *logrus.Logger and *logrus.Entry. Components accept
// this interface rather than a concrete logger so tests can swap in a no-op
// or capturing implementation.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// noop discards everything. Used as the default when a caller does not wire
// a Logger explicitly.
type noop struct{}

func (noop) Debugf(string, ...interface{}) {}
func (noop) Infof(string, ...interface{})  {}
func (noop) Warnf(string, ...interface{})  {}
func (noop) Errorf(string, ...interface{}) {}

// Noop returns a Logger that discards all output.
func Noop() Logger { return noop{} }

// NewLogrus builds a Logger backed by logrus, configured with the text
// formatter and the given field set attached to every line (typically the
// server id).
func NewLogrus(level logrus.Level, fields logrus.Fields) Logger {
	l := logrus.New()
	l.SetLevel(level)
	if len(fields) == 0 {
		return l
	}
	return l.WithFields(fields)
}
