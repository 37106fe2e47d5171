// Package gateway orchestrates the verdin-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the process. It builds
// the component graph from config — adapter factory, conversation store, rate
// limiter, reply engine, typing simulator, dedupe cache, pipeline, session
// registry — and owns its lifecycle.
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(ctx, cfg, onChallenge, logger)
//	err = gw.Run(ctx)
//
// Run brings up the default session and blocks until the context is canceled,
// then destroys all sessions and stops the background sweeps. The challenge
// handler passed to New receives credential challenge codes (QR payloads) for
// operator display.
//
// # Reporting
//
// Registry() and Engine() expose the in-process reporting surface: session
// status snapshots, direct sends, restarts and history clearing.
package gateway
