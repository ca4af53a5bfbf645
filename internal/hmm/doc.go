// Package hmm provides temporal smoothing of noisy per-epoch activity
// predictions with a Hidden Markov Model.
//
// Parameters (priors, transition matrix, emission matrix) are estimated
// from out-of-bag ensemble predictions against ground truth; the
// emission matrix captures the ensemble's label-specific error profile,
// which Viterbi decoding exploits to correct systematic confusions
// between behaviourally adjacent classes.
//
// Decoding runs entirely in log space with an additive epsilon floor so
// it stays finite and stable for sequences of tens of thousands of
// epochs (a week of 30-second epochs is roughly 20,000 points).
package hmm
