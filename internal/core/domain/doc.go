// Package domain defines the core entities of the suggestion engine.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Recommender: A configured predictive component bound to one layer/feature
//   - Suggestion: A machine-predicted candidate annotation (span or relation)
//   - Predictions: One immutable generation of suggestions plus its lifecycle overlay
//   - VID: The opaque address under which a suggestion is referenced
//   - EvaluationResult: One point on a learning curve
//   - RemoteDatasetState: The document versions held by a remote recommender
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
