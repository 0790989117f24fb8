// Package gfs holds the ambient conventions shared by every component of
// the brick storage engine: logging, error taxonomy and config mapping.
package gfs

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Log is the package-wide logger. Replaced wholesale in tests that want to
// capture output; components never construct their own logrus.Logger.
var Log = logrus.StandardLogger()

// object formats the first argument to a log call the way the teacher's
// fs.Errorf/Debugf family does: nil prints as "-", anything with a String()
// method uses it, everything else falls back to %v.
func object(o interface{}) string {
	if o == nil {
		return "-"
	}
	if s, ok := o.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", o)
}

// Errorf logs at error level, tagged with the object the message concerns
// (an inode, a path, a brick - whatever the caller has at hand).
func Errorf(o interface{}, format string, args ...interface{}) {
	Log.WithField("obj", object(o)).Errorf(format, args...)
}

// Logf logs at info level.
func Logf(o interface{}, format string, args ...interface{}) {
	Log.WithField("obj", object(o)).Infof(format, args...)
}

// Debugf logs at debug level.
func Debugf(o interface{}, format string, args ...interface{}) {
	Log.WithField("obj", object(o)).Debugf(format, args...)
}

// Infof is an alias of Logf kept for readability at call sites that want
// to stress this is routine, not noteworthy, activity.
func Infof(o interface{}, format string, args ...interface{}) {
	Log.WithField("obj", object(o)).Infof(format, args...)
}

// Warnf logs at warn level - used for degraded-but-continuing conditions
// such as a health-check probe failing once.
func Warnf(o interface{}, format string, args ...interface{}) {
	Log.WithField("obj", object(o)).Warnf(format, args...)
}
