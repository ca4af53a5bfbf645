// Package epoch owns the epoch-level feature data model.
//
// Responsibilities: the feature table (one row per fixed-length time
// window keyed by participant and timestamp), the ordered feature-column
// manifest, and row validation/partitioning. Rows with missing or
// non-finite feature values are never dropped; they are marked with
// SentinelLabel and excluded from all statistical computation downstream.
//
// No model or decoding logic is allowed in this package.
package epoch
