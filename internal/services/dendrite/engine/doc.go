// Package engine turns pending submissions into narrative graph writes.
//
// A page submission is resolved to its attachment point (an existing
// option's target, a directly named page, or a newly allocated page) and
// then committed as one atomic batch: the new variant, its options, a story
// stats increment, an optional author bootstrap, the origin variant's dirty
// marker, and the submission's processed marker. Story submissions
// materialize a fresh story subtree the same way.
//
// Redelivered submissions are safe: the processed marker is guarded by the
// store at commit time, so a second delivery commits nothing.
package engine
