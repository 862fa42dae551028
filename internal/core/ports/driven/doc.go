// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - AnnotationStore: Authoritative document text and confirmed annotations
//   - RecommenderStore: Recommender configuration
//   - EngineFactory: Creates recommendation engines per recommender tool
//   - ContextStore: Recommender contexts between training and prediction
//
// # Optional Interfaces
//
// These can be nil - the engine degrades gracefully:
//
//   - LearningRecordStore: Without it, rejections are not remembered across generations.
//   - TrainingRunStore: Without it, run history is not kept.
//   - RemoteRecommenderClient: Only needed by external recommenders.
//   - CorpusStore: Only needed by corpus import and watching.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
