// Package classify applies a loaded model bundle to new feature data
// end to end: row validation, ensemble point prediction, Viterbi
// smoothing per participant recording, MET assignment, and one-hot
// encoding.
//
// Rows failing validation are carried through under the sentinel label
// with all-missing one-hot values; they are never dropped and never
// mistaken for "no activity".
package classify
