// Package conversation holds per-contact reply context: a bounded
// turn history with retention-based purging, and a bounded set of
// recently active chats for status reporting.
package conversation
