// Package snapshot saves and restores automata bit-exactly.
//
// A snapshot is a set of tagged entries. Scalar entries hold canonical JSON
// (package record); the grid entry holds the committed generation in
// lattice offset order, restricted to the slices within the bound; the
// optional compliance entry holds the tracker's flags as a bitset.
//
// Restoring checks every identity tag against the exact value the target
// variant writes and rejects any mismatch with an INCOMPATIBLE error. Grid
// payloads carry a digest; a mismatch is reported as CORRUPT.
//
// Entries are what package store persists. File-backed automata can also be
// saved as a directory (SaveDir/LoadDir): a properties.yaml record next to
// the raw step=N.data generation file, which a restored automaton reads in
// place.
package snapshot
