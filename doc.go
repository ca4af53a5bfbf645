// Package actigraph is an activity classification engine for
// accelerometer epoch data. A balanced random forest produces per-epoch
// activity predictions, a hidden Markov model smooths each participant's
// prediction sequence, and per-label MET values turn labels into energy
// expenditure estimates. Trained models travel as single-file bundles
// resolvable by name through a cached registry.
//
// The engine lives under internal/; cmd/actigraph is the command line
// front end.
package actigraph
