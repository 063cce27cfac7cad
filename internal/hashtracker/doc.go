// Package hashtracker decides which files of a corpus must be re-parsed.
//
// ComputeChangeSet is a pure comparison of two path→hash snapshots. Tracker
// wraps it with persistence through the graph store. Persisting is an
// explicit, separate step so that hashes only move forward once the graph
// rows they describe are committed.
package hashtracker
