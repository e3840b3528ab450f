// Package workflow implements the Temporal rendition of the per-task judge
// pipeline.
//
// EvaluateTaskWorkflow fans the three judge activities out as parallel futures,
// joins them, and hands the calls to a single scoring activity that interprets,
// scores and records the trace. Judge activities run with MaximumAttempts 1:
// the judge client already owns the single retry, and an activity that fails
// outright is degraded inside the workflow with the same pure synthesizer the
// client uses.
//
// Workflows must stay deterministic. Wall clock time, randomness and I/O
// belong in activities; the exact-match check and degraded-call synthesis are
// pure functions and safe to run here.
package workflow
