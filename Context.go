/*
File Name:  Context.go

A crawl's logger and progress callback are passed explicitly through a
Context value rather than read from package-level globals (spec.md §9:
"pass a context object containing a logger and the optional progress
callback through the crawl; no hidden globals").
*/

package core

import (
	"io"
	"log"
)

// Context bundles the logger and optional progress callback for one
// crawl invocation.
type Context struct {
	Log      *log.Logger
	Progress ProgressFunc
}

// DefaultContext returns a Context that logs to io.Discard and has no
// progress callback - a safe zero-configuration starting point.
func DefaultContext() Context {
	return Context{Log: log.New(io.Discard, "", 0)}
}

// logf writes a formatted line if a logger is configured; it is a
// no-op otherwise, so callers never need to nil-check.
func (c Context) logf(format string, args ...interface{}) {
	if c.Log == nil {
		return
	}
	c.Log.Printf(format, args...)
}

// notify invokes the progress callback if one is configured, catching
// and logging any panic rather than letting it escape the scheduler's
// loop (spec.md §4.3: "exceptions in the callback are caught and
// logged, never propagated").
func (c Context) notify(snapshot []PeerRecord) {
	if c.Progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logf("progress callback panicked: %v", r)
		}
	}()
	c.Progress(snapshot)
}
