// Package eventrelay is a checkpointed batch exporter: it pulls
// newly-arrived rows from an analytics query endpoint, reshapes each row
// into a tracking event, and delivers the events to a downstream ingestion
// API under that API's payload-size limits.
//
// # Architecture
//
// A run is a single-threaded, strictly sequential pass through five
// stages:
//
//  1. Read: one bounded fetch of rows newer than the stored watermark.
//  2. Transform: each row becomes a tracking event; oversize or malformed
//     rows are skipped and counted, never fatal.
//  3. Plan: if the batch fits the sink's byte budget it ships as one
//     chunk; otherwise a sample-based estimator splits it.
//  4. Deliver: chunks post one at a time with a fixed delay between them;
//     transient failures retry with exponential backoff, any terminal
//     failure halts the run with the watermark untouched.
//  5. Advance: only after every chunk is accepted does the watermark move
//     to the max timestamp of the fetched rows.
//
// The watermark lives in a versioned secret store alongside the source
// token and sink write key, so repeated runs are resumable without data
// loss. Runs are expected to be scheduled externally, one at a time.
//
// # Quick Start
//
//	export GCP_PROJECT=my-project
//	eventrelay run
//
// See cmd/eventrelay for the CLI and internal/pipeline for the run state
// machine.
package eventrelay
