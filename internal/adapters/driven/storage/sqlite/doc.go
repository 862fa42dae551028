// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. It implements multiple store interfaces through a single database connection:
//
//   - AnnotationStore / CorpusStore: documents, layers and confirmed annotations
//   - RecommenderStore: recommender definitions
//   - LearningRecordStore: accept/reject decisions
//   - TrainingRunStore: background generation history
//   - SchedulerStore: maintenance task state and results
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.suggest/data/suggest.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
