// Package errors provides structured error types for the wirepack library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes rich context: field path, Go and wire
// type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseReflect, errors.KindUnsupported).
//		Path("Point", "Name").
//		GoType("string").
//		Detail("variable-size members cannot transit the wire").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseDescribe, path, "int", "int32")
//	err := errors.Finalized(errors.PhaseTeardown, "descriptor sweep")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
