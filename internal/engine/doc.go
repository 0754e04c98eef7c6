// Package engine advances the Aether automaton.
//
// ARCHITECTURE:
//
// One step is one sweep over the committed generation. The sweep visits the
// canonical cells slice by slice (slices are the cells sharing their first
// coordinate), builds each cell's neighbour descriptors, applies the
// toppling rule and accumulates the remainder and the transfers into the
// next generation. A cell in slice w only reads slices w-1, w and w+1, so
// once slice w is done slice w-1 of the previous generation is retired.
//
// Step Flow:
//  1. Begin a next generation covering Bound+3 slices
//  2. Topple every cell of slices 0 … Bound+1
//  3. Retire slice w-1 after slice w
//  4. Commit the next generation; the previous one is released
//  5. Return the new State (step+1, bound, toggled parity, changed)
//
// Slice Bound+1 holds only zeros, but a zero cell still tops up a negative
// neighbour, so it is swept too. The bound grows by one when a non-zero
// transfer leaves from or arrives at slice Bound+1.
//
// STATE:
//
// State is a plain value. Step takes the state of the committed generation
// and returns the state of the next one; nothing else is mutated. Automaton
// wraps a backend and its current state for callers that prefer a handle.
//
// CANCELLATION:
//
// A cancelled context is honoured before a step begins. Backends that keep
// the previous generation readable for the whole step (grid.FileBackend,
// grid.MemoryBackend with KeepPrevious) are also checked between slices; the
// partial generation is discarded and the committed one stays current.
package engine
