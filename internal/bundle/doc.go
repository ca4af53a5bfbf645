// Package bundle persists and resolves trained activity models.
//
// A bundle is a single zip archive holding the feature-column manifest,
// the serialized forest (zstd-compressed JSON), the HMM parameters, and
// the per-label MET table. Writes go through a temp-file rename so a
// partial write is never observable; loads verify the format version and
// a recorded digest of the forest blob, so a truncated or tampered
// archive fails loudly instead of half-loading.
//
// Model identifiers resolve in order: existing file path, local cache,
// remote download into the cache. An unknown name with no file behind it
// is ErrModelNotFound; nothing is ever silently substituted.
package bundle
