package driving

import (
	"context"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

// ImportOptions control how files are imported into a project.
type ImportOptions struct {
	ProjectID string

	// User owns the confirmed annotations read from sidecar files.
	User string

	// Prune removes stored documents that no longer exist on disk.
	Prune bool

	// Force re-imports documents whose version is unchanged.
	Force bool
}

// ImportReport summarises a directory import.
type ImportReport struct {
	Imported    int
	Unchanged   int
	Removed     int
	Annotations int
	Failed      []string
}

// CorpusService loads text files into the annotation store and reads
// recommender corpora back out of it.
type CorpusService interface {
	// ImportDir imports every *.txt file under dir.
	ImportDir(ctx context.Context, opts ImportOptions, dir string) (*ImportReport, error)

	// ImportFile imports one file below root. Sidecar paths import their
	// document. It reports whether the document was written.
	ImportFile(ctx context.Context, opts ImportOptions, root, path string) (bool, error)

	// RemoveFile deletes the document stored for a file below root.
	RemoveFile(ctx context.Context, projectID, root, path string) error

	// Documents lists the documents of a project.
	Documents(ctx context.Context, projectID string) ([]domain.Document, error)

	// DocumentText returns the text of a document.
	DocumentText(ctx context.Context, projectID, name string) (string, error)

	// LoadCorpus returns a recommender and the user's confirmed annotations
	// on the layers it reads.
	LoadCorpus(ctx context.Context, recommenderID, user string) (*domain.Recommender, []domain.AnnotatedDocument, error)
}
