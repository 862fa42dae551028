package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/suggest/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
)

const importSidecar = `{
	"annotations": [
		{"layer": "ner", "begin": 0, "end": 5, "features": {"value": "PER"}},
		{"layer": "ner", "begin": 10, "end": 13, "features": {"value": "PER"}}
	],
	"relations": [
		{"layer": "rel", "source": 0, "target": 1, "features": {"label": "knows"}}
	]
}`

func writeCorpusFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newCorpusFixture(t *testing.T) (*CorpusService, *memory.AnnotationStore, string) {
	t.Helper()
	dir, err := os.MkdirTemp("", "suggest-corpus-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	store := memory.NewAnnotationStore()
	recs := memory.NewRecommenderStore()
	require.NoError(t, recs.Save(context.Background(), testRecommender()))
	return NewCorpusService(store, store, recs), store, dir
}

func TestCorpusService_ImportDir(t *testing.T) {
	svc, store, dir := newCorpusFixture(t)
	ctx := context.Background()

	writeCorpusFile(t, dir, "a.txt", "Alice met Bob.")
	writeCorpusFile(t, dir, "a.ann.json", importSidecar)
	writeCorpusFile(t, dir, "sub/b.txt", "Paris")
	writeCorpusFile(t, dir, "notes.md", "ignored")
	writeCorpusFile(t, dir, ".hidden.txt", "hidden")
	writeCorpusFile(t, dir, ".git/c.txt", "hidden dir")

	opts := driving.ImportOptions{ProjectID: "p1", User: "alice"}
	report, err := svc.ImportDir(ctx, opts, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 3, report.Annotations)
	assert.Empty(t, report.Failed)

	docs, err := svc.Documents(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a.txt", docs[0].Name)
	assert.Equal(t, "sub/b.txt", docs[1].Name)
	assert.NotEqual(t, domain.UnknownVersion, docs[0].Version())

	text, err := svc.DocumentText(ctx, "p1", "sub/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "Paris", text)
	_, err = svc.DocumentText(ctx, "p1", "missing.txt")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	spans, err := store.ListConfirmedAnnotations(ctx, "p1", "a.txt", "alice", "ner")
	require.NoError(t, err)
	require.Len(t, spans, 2)
	label, ok := spans[0].Feature("value")
	assert.True(t, ok)
	assert.Equal(t, "PER", label)

	relations, err := store.ListConfirmedAnnotations(ctx, "p1", "a.txt", "alice", "rel")
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.Equal(t, spans[0].Ref, relations[0].Source)
	assert.Equal(t, spans[1].Ref, relations[0].Target)

	t.Run("unchanged files are skipped", func(t *testing.T) {
		report, err := svc.ImportDir(ctx, opts, dir)
		require.NoError(t, err)
		assert.Zero(t, report.Imported)
		assert.Equal(t, 2, report.Unchanged)
	})

	t.Run("force replaces annotations", func(t *testing.T) {
		forced := opts
		forced.Force = true
		report, err := svc.ImportDir(ctx, forced, dir)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Imported)

		spans, err := store.ListConfirmedAnnotations(ctx, "p1", "a.txt", "alice", "ner")
		require.NoError(t, err)
		assert.Len(t, spans, 2)
	})

	t.Run("prune removes missing documents", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(dir, "sub", "b.txt")))
		pruned := opts
		pruned.Prune = true
		report, err := svc.ImportDir(ctx, pruned, dir)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Removed)

		docs, err := svc.Documents(ctx, "p1")
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})
}

func TestCorpusService_ImportDir_Errors(t *testing.T) {
	svc, _, dir := newCorpusFixture(t)
	ctx := context.Background()

	_, err := svc.ImportDir(ctx, driving.ImportOptions{}, dir)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.ImportDir(ctx, driving.ImportOptions{ProjectID: "p1"}, filepath.Join(dir, "missing"))
	assert.ErrorContains(t, err, "root path error")

	writeCorpusFile(t, dir, "bad.txt", "text")
	writeCorpusFile(t, dir, "bad.ann.json", "{not json")
	writeCorpusFile(t, dir, "anon.txt", "text")
	writeCorpusFile(t, dir, "anon.ann.json", `{"annotations":[{"layer":"ner","begin":0,"end":4}]}`)
	writeCorpusFile(t, dir, "span.txt", "text")
	writeCorpusFile(t, dir, "span.ann.json", `{"annotations":[{"layer":"ner","begin":2,"end":40}]}`)

	report, err := svc.ImportDir(ctx, driving.ImportOptions{ProjectID: "p1"}, dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"anon.txt", "bad.txt", "span.txt"}, report.Failed)

	report, err = svc.ImportDir(ctx, driving.ImportOptions{ProjectID: "p1", User: "alice", Force: true}, dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bad.txt", "span.txt"}, report.Failed)
}

func TestCorpusService_ImportAndRemoveFile(t *testing.T) {
	svc, store, dir := newCorpusFixture(t)
	ctx := context.Background()
	opts := driving.ImportOptions{ProjectID: "p1", User: "alice"}

	text := writeCorpusFile(t, dir, "a.txt", "Alice met Bob.")
	written, err := svc.ImportFile(ctx, opts, dir, text)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = svc.ImportFile(ctx, opts, dir, text)
	require.NoError(t, err)
	assert.False(t, written, "unchanged")

	sidecar := writeCorpusFile(t, dir, "a.ann.json", importSidecar)
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(sidecar, later, later))
	written, err = svc.ImportFile(ctx, opts, dir, sidecar)
	require.NoError(t, err)
	assert.True(t, written, "a newer sidecar re-imports its document")

	spans, err := store.ListConfirmedAnnotations(ctx, "p1", "a.txt", "alice", "ner")
	require.NoError(t, err)
	assert.Len(t, spans, 2)

	written, err = svc.ImportFile(ctx, opts, dir, writeCorpusFile(t, dir, "readme.md", "x"))
	require.NoError(t, err)
	assert.False(t, written)

	written, err = svc.ImportFile(ctx, opts, dir, writeCorpusFile(t, dir, ".cache/x.txt", "x"))
	require.NoError(t, err)
	assert.False(t, written)

	_, err = svc.ImportFile(ctx, opts, dir, "/elsewhere/a.txt")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	require.NoError(t, svc.RemoveFile(ctx, "p1", dir, sidecar))
	docs, err := svc.Documents(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, docs, 1, "removing a sidecar keeps the document")

	require.NoError(t, svc.RemoveFile(ctx, "p1", dir, text))
	docs, err = svc.Documents(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestCorpusService_LoadCorpus(t *testing.T) {
	svc, _, dir := newCorpusFixture(t)
	ctx := context.Background()

	writeCorpusFile(t, dir, "a.txt", "Alice met Bob.")
	writeCorpusFile(t, dir, "a.ann.json", importSidecar)
	_, err := svc.ImportDir(ctx, driving.ImportOptions{ProjectID: "p1", User: "alice"}, dir)
	require.NoError(t, err)

	rec, corpus, err := svc.LoadCorpus(ctx, "ner", "alice")
	require.NoError(t, err)
	assert.Equal(t, "ner", rec.ID)
	require.Len(t, corpus, 1)
	assert.Equal(t, "Alice met Bob.", corpus[0].Document.Text)
	assert.Len(t, corpus[0].Annotations, 2)

	_, corpus, err = svc.LoadCorpus(ctx, "ner", "bob")
	require.NoError(t, err)
	require.Len(t, corpus, 1)
	assert.Empty(t, corpus[0].Annotations)

	_, _, err = svc.LoadCorpus(ctx, "missing", "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCorpusService_NotConfigured(t *testing.T) {
	svc := NewCorpusService(nil, nil, nil)
	ctx := context.Background()

	_, err := svc.ImportDir(ctx, driving.ImportOptions{ProjectID: "p1"}, ".")
	assert.ErrorIs(t, err, domain.ErrNotImplemented)
	_, err = svc.ImportFile(ctx, driving.ImportOptions{ProjectID: "p1"}, ".", "a.txt")
	assert.ErrorIs(t, err, domain.ErrNotImplemented)
	assert.ErrorIs(t, svc.RemoveFile(ctx, "p1", ".", "a.txt"), domain.ErrNotImplemented)
	_, _, err = svc.LoadCorpus(ctx, "ner", "alice")
	assert.ErrorIs(t, err, domain.ErrNotImplemented)
}

func TestDocumentName(t *testing.T) {
	tests := []struct {
		name    string
		root    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "top level", root: "/data", path: "/data/a.txt", want: "a.txt"},
		{name: "nested", root: "/data", path: "/data/x/y/b.txt", want: "x/y/b.txt"},
		{name: "outside", root: "/data", path: "/other/a.txt", wantErr: true},
		{name: "root itself", root: "/data", path: "/data", wantErr: true},
		{name: "dotted name", root: "/data", path: "/data/..a.txt", want: "..a.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DocumentName(tt.root, tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTextAndSidecarPaths(t *testing.T) {
	path, ok := TextPathFor("/d/a.ann.json")
	assert.True(t, ok)
	assert.Equal(t, "/d/a.txt", path)

	path, ok = TextPathFor("/d/a.txt")
	assert.True(t, ok)
	assert.Equal(t, "/d/a.txt", path)

	_, ok = TextPathFor("/d/a.json")
	assert.False(t, ok)

	assert.Equal(t, "/d/a.ann.json", SidecarPathFor("/d/a.txt"))
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{".hidden", true},
		{"path/to/.hidden", true},
		{"dir/.git/config", true},
		{"file.txt", false},
		{"path/to/file.txt", false},
		{".", false},
		{"..", false},
		{"path/../file", false},
		{"", false},
		{"file.hidden", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHidden(tt.path))
		})
	}
}
