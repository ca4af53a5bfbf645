// Package sqlite persists classification runs and evaluation summaries.
//
// Batch inference over many recordings benefits from a durable record of
// what was classified with which model and how well it agreed with
// ground truth; this package owns that bookkeeping so the engine
// packages stay free of SQL noise.
package sqlite
