// Package classfile defines the compiled class representation the
// instrumentation engine reads and rewrites, together with its binary
// container format.
//
// Method bodies are flat instruction lists. Branch targets, exception ranges
// and local-variable scopes refer to label pseudo-instructions by id, so code
// can be spliced without recomputing offsets. Every value, long and double
// included, occupies one operand-stack or local slot.
//
// # Decoding and Encoding
//
//	class, err := classfile.Decode(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := class.Encode()
//
// Decode with validation enabled:
//
//	class, err := classfile.DecodeValidate(data)
//
// # Descriptors
//
// Field descriptors use I, J, F, D (Z, B, C, S read as int), Lname; for
// classes and a [ prefix for arrays. Method descriptors are "(params)ret".
package classfile
