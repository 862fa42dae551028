package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
	"github.com/custodia-labs/suggest/internal/logger"
)

// Ensure CorpusService implements the interface.
var _ driving.CorpusService = (*CorpusService)(nil)

// File name suffixes recognised by the importer.
const (
	TextSuffix    = ".txt"
	SidecarSuffix = ".ann.json"
)

// sidecarFile is the on-disk format of confirmed annotations for a document.
// Relations reference spans by their index in Annotations.
type sidecarFile struct {
	Annotations []sidecarSpan     `json:"annotations"`
	Relations   []sidecarRelation `json:"relations"`
}

type sidecarSpan struct {
	Layer    string            `json:"layer"`
	Begin    int               `json:"begin"`
	End      int               `json:"end"`
	Features map[string]string `json:"features"`
}

type sidecarRelation struct {
	Layer    string            `json:"layer"`
	Source   int               `json:"source"`
	Target   int               `json:"target"`
	Features map[string]string `json:"features"`
}

// CorpusService imports text files into the annotation store.
type CorpusService struct {
	store        driven.AnnotationStore
	corpus       driven.CorpusStore
	recommenders driven.RecommenderStore
}

// NewCorpusService creates a new corpus service.
func NewCorpusService(
	store driven.AnnotationStore,
	corpus driven.CorpusStore,
	recommenders driven.RecommenderStore,
) *CorpusService {
	return &CorpusService{
		store:        store,
		corpus:       corpus,
		recommenders: recommenders,
	}
}

// ImportDir imports every visible *.txt file under dir. Failures of single
// documents are reported and do not stop the import.
func (s *CorpusService) ImportDir(
	ctx context.Context,
	opts driving.ImportOptions,
	dir string,
) (*driving.ImportReport, error) {
	if s.store == nil || s.corpus == nil {
		return nil, domain.ErrNotImplemented
	}
	if opts.ProjectID == "" {
		return nil, fmt.Errorf("%w: project is required", domain.ErrInvalidInput)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path error: %s is not a directory", dir)
	}

	existing, err := s.versions(ctx, opts.ProjectID)
	if err != nil {
		return nil, err
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && IsHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(path, TextSuffix) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	report := &driving.ImportReport{}
	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		name, err := DocumentName(dir, path)
		if err != nil {
			report.Failed = append(report.Failed, path)
			continue
		}
		seen[name] = true

		written, annotations, err := s.importText(ctx, opts, name, path, existing)
		switch {
		case err != nil:
			logger.Warnw("import failed", "project", opts.ProjectID, "document", name, "error", err)
			report.Failed = append(report.Failed, name)
		case written:
			report.Imported++
			report.Annotations += annotations
		default:
			report.Unchanged++
		}
	}

	if opts.Prune {
		for name := range existing {
			if seen[name] {
				continue
			}
			if err := s.corpus.DeleteDocument(ctx, opts.ProjectID, name); err != nil {
				report.Failed = append(report.Failed, name)
				continue
			}
			report.Removed++
		}
	}

	logger.Debug("Imported %d documents into %s (%d unchanged, %d removed, %d failed)",
		report.Imported, opts.ProjectID, report.Unchanged, report.Removed, len(report.Failed))
	return report, nil
}

// ImportFile imports the document of one file below root. Sidecar paths
// import the document they belong to; other files are ignored.
func (s *CorpusService) ImportFile(ctx context.Context, opts driving.ImportOptions, root, path string) (bool, error) {
	if s.store == nil || s.corpus == nil {
		return false, domain.ErrNotImplemented
	}
	if opts.ProjectID == "" {
		return false, fmt.Errorf("%w: project is required", domain.ErrInvalidInput)
	}

	textPath, ok := TextPathFor(path)
	if !ok {
		return false, nil
	}
	name, err := DocumentName(root, textPath)
	if err != nil {
		return false, err
	}
	if IsHidden(name) {
		return false, nil
	}

	existing, err := s.versions(ctx, opts.ProjectID)
	if err != nil {
		return false, err
	}
	written, _, err := s.importText(ctx, opts, name, textPath, existing)
	return written, err
}

// RemoveFile deletes the document stored for a text file below root.
// Removing a sidecar keeps the document and its annotations.
func (s *CorpusService) RemoveFile(ctx context.Context, projectID, root, path string) error {
	if s.corpus == nil {
		return domain.ErrNotImplemented
	}
	if !strings.HasSuffix(path, TextSuffix) {
		return nil
	}
	name, err := DocumentName(root, path)
	if err != nil {
		return err
	}
	if err := s.corpus.DeleteDocument(ctx, projectID, name); err != nil {
		return fmt.Errorf("delete document %s: %w", name, err)
	}
	return nil
}

// Documents lists the documents of a project.
func (s *CorpusService) Documents(ctx context.Context, projectID string) ([]domain.Document, error) {
	if s.store == nil {
		return nil, domain.ErrNotImplemented
	}
	return s.store.ListDocuments(ctx, projectID)
}

// DocumentText returns the text of a document.
func (s *CorpusService) DocumentText(ctx context.Context, projectID, name string) (string, error) {
	if s.store == nil {
		return "", domain.ErrNotImplemented
	}
	return s.store.ReadDocumentText(ctx, projectID, name)
}

// LoadCorpus returns a recommender and the user's confirmed annotations on
// the layers it reads.
func (s *CorpusService) LoadCorpus(
	ctx context.Context,
	recommenderID, user string,
) (*domain.Recommender, []domain.AnnotatedDocument, error) {
	if s.store == nil || s.recommenders == nil {
		return nil, nil, domain.ErrNotImplemented
	}
	rec, err := s.recommenders.Get(ctx, recommenderID)
	if err != nil {
		return nil, nil, fmt.Errorf("get recommender: %w", err)
	}
	corpus, err := loadCorpus(ctx, s.store, *rec, user)
	if err != nil {
		return nil, nil, err
	}
	return rec, corpus, nil
}

// versions maps stored document names to their versions.
func (s *CorpusService) versions(ctx context.Context, projectID string) (map[string]int64, error) {
	docs, err := s.store.ListDocuments(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make(map[string]int64, len(docs))
	for _, d := range docs {
		out[d.Name] = d.Version()
	}
	return out, nil
}

// importText stores a text file and its sidecar annotations. It returns
// whether the document was written and how many annotations were created.
func (s *CorpusService) importText(
	ctx context.Context,
	opts driving.ImportOptions,
	name, path string,
	existing map[string]int64,
) (bool, int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	modified := info.ModTime()

	var sidecar *sidecarFile
	sidecarPath := SidecarPathFor(path)
	if sideInfo, err := os.Stat(sidecarPath); err == nil {
		if sideInfo.ModTime().After(modified) {
			modified = sideInfo.ModTime()
		}
		sidecar, err = readSidecar(sidecarPath)
		if err != nil {
			return false, 0, err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, 0, fmt.Errorf("stat %s: %w", sidecarPath, err)
	}

	updatedAt := time.UnixMilli(modified.UnixMilli())
	if version, ok := existing[name]; ok && version == updatedAt.UnixMilli() && !opts.Force {
		return false, 0, nil
	}

	text, err := os.ReadFile(path)
	if err != nil {
		return false, 0, fmt.Errorf("read %s: %w", path, err)
	}

	doc := domain.Document{
		Name:      name,
		ProjectID: opts.ProjectID,
		Text:      string(text),
		UpdatedAt: updatedAt,
	}
	if err := s.corpus.SaveDocument(ctx, doc); err != nil {
		return false, 0, fmt.Errorf("save document %s: %w", name, err)
	}
	existing[name] = updatedAt.UnixMilli()

	if sidecar == nil {
		return true, 0, nil
	}
	if opts.User == "" {
		return true, 0, fmt.Errorf("%w: a user is required to import annotations of %s", domain.ErrInvalidInput, name)
	}
	created, err := s.applySidecar(ctx, opts, name, sidecar)
	if err != nil {
		return true, created, fmt.Errorf("import annotations of %s: %w", name, err)
	}
	return true, created, nil
}

// applySidecar replaces the user's annotations on the sidecar's layers.
func (s *CorpusService) applySidecar(
	ctx context.Context,
	opts driving.ImportOptions,
	name string,
	sidecar *sidecarFile,
) (int, error) {
	layers := sidecar.layers()
	for _, layer := range layers {
		if err := s.corpus.EnsureLayer(ctx, opts.ProjectID, layer); err != nil {
			return 0, fmt.Errorf("ensure layer %s: %w", layer, err)
		}
		old, err := s.store.ListConfirmedAnnotations(ctx, opts.ProjectID, name, opts.User, layer)
		if err != nil {
			return 0, fmt.Errorf("list annotations on %s: %w", layer, err)
		}
		for _, a := range old {
			if err := s.store.DeleteAnnotation(ctx, a.Ref); err != nil {
				return 0, fmt.Errorf("delete annotation %s: %w", a.Ref, err)
			}
		}
	}

	created := 0
	refs := make([]string, len(sidecar.Annotations))
	for i, span := range sidecar.Annotations {
		ref, err := s.store.CreateAnnotation(ctx, opts.ProjectID, name, opts.User, span.Layer,
			domain.Offset{Begin: span.Begin, End: span.End})
		if err != nil {
			return created, fmt.Errorf("annotation %d: %w", i, err)
		}
		if err := s.setFeatures(ctx, ref, span.Features); err != nil {
			return created, fmt.Errorf("annotation %d: %w", i, err)
		}
		refs[i] = ref
		created++
	}

	for i, rel := range sidecar.Relations {
		if rel.Source < 0 || rel.Source >= len(refs) || rel.Target < 0 || rel.Target >= len(refs) {
			return created, fmt.Errorf("relation %d: %w", i, domain.ErrAnchorNotFound)
		}
		ref, err := s.store.CreateRelation(ctx, opts.ProjectID, name, opts.User, rel.Layer, refs[rel.Source], refs[rel.Target])
		if err != nil {
			return created, fmt.Errorf("relation %d: %w", i, err)
		}
		if err := s.setFeatures(ctx, ref, rel.Features); err != nil {
			return created, fmt.Errorf("relation %d: %w", i, err)
		}
		created++
	}
	return created, nil
}

func (s *CorpusService) setFeatures(ctx context.Context, ref string, features map[string]string) error {
	names := make([]string, 0, len(features))
	for f := range features {
		names = append(names, f)
	}
	sort.Strings(names)
	for _, f := range names {
		if err := s.store.UpdateFeature(ctx, ref, f, features[f]); err != nil {
			return fmt.Errorf("set feature %s: %w", f, err)
		}
	}
	return nil
}

// layers returns the distinct layers a sidecar writes, in first-use order.
func (f *sidecarFile) layers() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(layer string) {
		if !seen[layer] {
			seen[layer] = true
			out = append(out, layer)
		}
	}
	for _, a := range f.Annotations {
		add(a.Layer)
	}
	for _, r := range f.Relations {
		add(r.Layer)
	}
	return out
}

func readSidecar(path string) (*sidecarFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var f sidecarFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, a := range f.Annotations {
		if a.Layer == "" {
			return nil, fmt.Errorf("%w: %s: annotation %d has no layer", domain.ErrInvalidInput, path, i)
		}
	}
	for i, r := range f.Relations {
		if r.Layer == "" {
			return nil, fmt.Errorf("%w: %s: relation %d has no layer", domain.ErrInvalidInput, path, i)
		}
	}
	return &f, nil
}

// DocumentName returns the document name of a file below root: its
// slash-separated relative path.
func DocumentName(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("%w: %s is not below %s", domain.ErrInvalidInput, path, root)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is not below %s", domain.ErrInvalidInput, path, root)
	}
	return filepath.ToSlash(rel), nil
}

// TextPathFor maps a text or sidecar path to its text file path.
func TextPathFor(path string) (string, bool) {
	switch {
	case strings.HasSuffix(path, SidecarSuffix):
		return strings.TrimSuffix(path, SidecarSuffix) + TextSuffix, true
	case strings.HasSuffix(path, TextSuffix):
		return path, true
	default:
		return "", false
	}
}

// SidecarPathFor returns the sidecar path of a text file.
func SidecarPathFor(path string) string {
	return strings.TrimSuffix(path, TextSuffix) + SidecarSuffix
}

// IsHidden reports whether any element of a path starts with a dot.
// "." and ".." are not hidden.
func IsHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part != "." && part != ".." && strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
