// Package term defines the tagged value word used by process heaps and the
// Go-side term types used at the realm boundary.
//
// # Value layout
//
// A Value is 64 bits with a 3-bit tag in the low bits:
//
//	special  nil, false, true
//	int      61-bit signed integer
//	keyword  index into the realm-wide keyword table
//	pid      process identifier
//	boxed    word address of an object header
//	header   object header: size<<8 | kind<<3 | tag
//
// Objects are a header followed by payload words. Tuples, vectors and cons
// cells hold Values; strings and inline binaries hold raw bytes; floats,
// big integers, pooled binary handles and references hold raw words.
//
// During collection a boxed Value written over a header marks a forwarded
// object; see package heap.
package term
