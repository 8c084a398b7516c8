// Package pages provides the memory provider used by process heaps.
//
// A Provider hands out page-granular Ranges of 64-bit words. Each range has a
// unique word base address; heap values refer to objects by word address, so
// the collector can tell whether a reference points into a given heap.
//
// Two providers are included:
//
//	NewGoProvider    Go-allocated slices with synthetic base addresses
//	NewMmapProvider  anonymous mappings via golang.org/x/sys/unix
//
// Both charge an optional Budget, which the binary pool shares so that a realm
// has a single memory cap.
package pages
