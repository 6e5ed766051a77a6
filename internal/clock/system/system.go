// Package system provides the wall clock used to stamp crawl outcomes.
package system

import "time"

// Clock implements crawler.Clock. Times are always UTC so ledger rows from
// different hosts compare cleanly.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
