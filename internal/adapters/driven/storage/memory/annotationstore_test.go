package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

func newSeededAnnotationStore(t *testing.T) *AnnotationStore {
	t.Helper()
	ctx := context.Background()
	store := NewAnnotationStore()
	require.NoError(t, store.SaveDocument(ctx, domain.Document{
		Name:      "a.txt",
		ProjectID: "p1",
		Text:      "Alice met Bob in Paris.",
		UpdatedAt: time.UnixMilli(1000),
	}))
	require.NoError(t, store.EnsureLayer(ctx, "p1", "ner"))
	require.NoError(t, store.EnsureLayer(ctx, "p1", "rel"))
	return store
}

func TestAnnotationStore_ListDocuments_OmitsText(t *testing.T) {
	store := newSeededAnnotationStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveDocument(ctx, domain.Document{Name: "0.txt", ProjectID: "p1", Text: "x"}))
	require.NoError(t, store.SaveDocument(ctx, domain.Document{Name: "other.txt", ProjectID: "p2", Text: "y"}))

	docs, err := store.ListDocuments(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "0.txt", docs[0].Name)
	assert.Equal(t, "a.txt", docs[1].Name)
	assert.Empty(t, docs[1].Text)
	assert.Equal(t, int64(1000), docs[1].Version())

	text, err := store.ReadDocumentText(ctx, "p1", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "Alice met Bob in Paris.", text)
}

func TestAnnotationStore_ReadDocumentText_Missing(t *testing.T) {
	store := NewAnnotationStore()
	_, err := store.ReadDocumentText(context.Background(), "p1", "gone.txt")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestAnnotationStore_CreateAndLabel(t *testing.T) {
	store := newSeededAnnotationStore(t)
	ctx := context.Background()

	ref, err := store.CreateAnnotation(ctx, "p1", "a.txt", "alice", "ner", domain.Offset{Begin: 0, End: 5})
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	require.NoError(t, store.UpdateFeature(ctx, ref, "value", "PER"))

	anns, err := store.ListConfirmedAnnotations(ctx, "p1", "a.txt", "alice", "ner")
	require.NoError(t, err)
	require.Len(t, anns, 1)
	label, ok := anns[0].Feature("value")
	assert.True(t, ok)
	assert.Equal(t, "PER", label)

	// Other users do not see it.
	anns, err = store.ListConfirmedAnnotations(ctx, "p1", "a.txt", "bob", "ner")
	require.NoError(t, err)
	assert.Empty(t, anns)
}

func TestAnnotationStore_ListReturnsCopies(t *testing.T) {
	store := newSeededAnnotationStore(t)
	ctx := context.Background()
	ref, err := store.CreateAnnotation(ctx, "p1", "a.txt", "alice", "ner", domain.Offset{Begin: 0, End: 5})
	require.NoError(t, err)
	require.NoError(t, store.UpdateFeature(ctx, ref, "value", "PER"))

	anns, err := store.ListConfirmedAnnotations(ctx, "p1", "a.txt", "alice", "ner")
	require.NoError(t, err)
	anns[0].Features["value"] = "LOC"

	again, err := store.ListConfirmedAnnotations(ctx, "p1", "a.txt", "alice", "ner")
	require.NoError(t, err)
	assert.Equal(t, "PER", again[0].Features["value"])
}

func TestAnnotationStore_Errors(t *testing.T) {
	store := newSeededAnnotationStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		project string
		doc     string
		layer   string
		span    domain.Offset
		wantErr error
	}{
		{"missing document", "p1", "gone.txt", "ner", domain.Offset{Begin: 0, End: 1}, domain.ErrDocumentNotFound},
		{"missing layer", "p1", "a.txt", "pos", domain.Offset{Begin: 0, End: 1}, domain.ErrLayerNotFound},
		{"span outside text", "p1", "a.txt", "ner", domain.Offset{Begin: 0, End: 100}, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.CreateAnnotation(ctx, tt.project, tt.doc, "alice", tt.layer, tt.span)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.ErrorIs(t, store.UpdateFeature(ctx, "unknown", "value", "X"), domain.ErrNotFound)
}

func TestAnnotationStore_AnnotationsChangedAt(t *testing.T) {
	store := newSeededAnnotationStore(t)
	ctx := context.Background()

	changedAt := func(user string) time.Time {
		t.Helper()
		at, err := store.AnnotationsChangedAt(ctx, "p1", "a.txt", user)
		require.NoError(t, err)
		return at
	}
	assert.True(t, changedAt("alice").IsZero())

	source, err := store.CreateAnnotation(ctx, "p1", "a.txt", "alice", "ner", domain.Offset{Begin: 0, End: 5})
	require.NoError(t, err)
	target, err := store.CreateAnnotation(ctx, "p1", "a.txt", "alice", "ner", domain.Offset{Begin: 10, End: 13})
	require.NoError(t, err)
	created := changedAt("alice")
	assert.False(t, created.IsZero())
	assert.True(t, changedAt("bob").IsZero())

	rel, err := store.CreateRelation(ctx, "p1", "a.txt", "alice", "rel", source, target)
	require.NoError(t, err)
	related := changedAt("alice")
	assert.True(t, related.After(created))

	require.NoError(t, store.UpdateFeature(ctx, rel, "label", "knows"))
	labelled := changedAt("alice")
	assert.True(t, labelled.After(related))

	require.NoError(t, store.DeleteAnnotation(ctx, rel))
	assert.True(t, changedAt("alice").After(labelled))

	require.NoError(t, store.DeleteDocument(ctx, "p1", "a.txt"))
	assert.True(t, changedAt("alice").IsZero())
}

func TestAnnotationStore_RemoveLayerDropsAnnotations(t *testing.T) {
	store := newSeededAnnotationStore(t)
	ctx := context.Background()
	ref, err := store.CreateAnnotation(ctx, "p1", "a.txt", "alice", "ner", domain.Offset{Begin: 0, End: 5})
	require.NoError(t, err)

	require.NoError(t, store.RemoveLayer(ctx, "p1", "ner"))

	_, err = store.ListConfirmedAnnotations(ctx, "p1", "a.txt", "alice", "ner")
	assert.ErrorIs(t, err, domain.ErrLayerNotFound)
	assert.ErrorIs(t, store.UpdateFeature(ctx, ref, "value", "PER"), domain.ErrNotFound)
}

func TestAnnotationStore_DeleteDocumentDropsAnnotations(t *testing.T) {
	store := newSeededAnnotationStore(t)
	ctx := context.Background()
	ref, err := store.CreateAnnotation(ctx, "p1", "a.txt", "alice", "ner", domain.Offset{Begin: 0, End: 5})
	require.NoError(t, err)

	require.NoError(t, store.DeleteDocument(ctx, "p1", "a.txt"))

	_, err = store.ReadDocumentText(ctx, "p1", "a.txt")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	assert.ErrorIs(t, store.UpdateFeature(ctx, ref, "value", "PER"), domain.ErrNotFound)
}

func TestAnnotationStore_CreateRelation(t *testing.T) {
	store := newSeededAnnotationStore(t)
	ctx := context.Background()
	alice, err := store.CreateAnnotation(ctx, "p1", "a.txt", "alice", "ner", domain.Offset{Begin: 0, End: 5})
	require.NoError(t, err)
	bob, err := store.CreateAnnotation(ctx, "p1", "a.txt", "alice", "ner", domain.Offset{Begin: 10, End: 13})
	require.NoError(t, err)

	ref, err := store.CreateRelation(ctx, "p1", "a.txt", "alice", "rel", alice, bob)
	require.NoError(t, err)

	rels, err := store.ListConfirmedAnnotations(ctx, "p1", "a.txt", "alice", "rel")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, ref, rels[0].Ref)
	assert.Equal(t, alice, rels[0].Source)
	assert.Equal(t, bob, rels[0].Target)

	_, err = store.CreateRelation(ctx, "p1", "a.txt", "alice", "rel", alice, "missing")
	assert.ErrorIs(t, err, domain.ErrAnchorNotFound)
}

func TestAnnotationStore_ConcurrentWrites(t *testing.T) {
	store := newSeededAnnotationStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := store.CreateAnnotation(ctx, "p1", "a.txt", "alice", "ner", domain.Offset{Begin: 0, End: 5})
			if err == nil {
				_ = store.UpdateFeature(ctx, ref, "value", "PER")
			}
		}()
	}
	wg.Wait()

	anns, err := store.ListConfirmedAnnotations(ctx, "p1", "a.txt", "alice", "ner")
	require.NoError(t, err)
	assert.Len(t, anns, 20)
}
