// Package flows contains the orchestration behind every Authority operation.
//
// Each Run* function takes a typed dependency struct and touches the outside
// world only through it. The root package builds the structs once and maps
// flow failures onto its public errors.
//
// # Architecture boundaries
//
// Flows coordinate the session store, the token codec, the user directory,
// audit and metrics. They own none of them.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import lmsauth (import cycle).
//   - Perform I/O except through its dependencies.
package flows
