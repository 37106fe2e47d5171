// Package dedupe provides message deduplication using a time-based cache
// to prevent answering the same message twice within a configurable window.
package dedupe
