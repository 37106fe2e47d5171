// Package adapter defines the messaging-network boundary: the Adapter
// interface a session drives, the event types an adapter emits, and the
// Factory that constructs adapters per session. The wameow subpackage holds
// the whatsmeow-backed implementation; tests substitute fakes.
package adapter
