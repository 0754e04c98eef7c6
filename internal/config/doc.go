// Package config loads run configurations written in CUE.
//
// A configuration file declares a single run struct:
//
//	run: {
//		dimension: 3
//		initial:   "1000000000000"
//		variant:   "big_int"
//		steps:     500
//	}
//
// The file is unified with an embedded schema that closes the struct,
// constrains every field and supplies defaults, so a file only needs to set
// initial.
package config
