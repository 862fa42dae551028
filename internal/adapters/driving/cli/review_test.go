package cli

import (
	"bufio"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
)

func TestReviewCmd_Session(t *testing.T) {
	preds := testPredictions(t)
	offered := collectSuggestions(preds, "", false)
	require.Len(t, offered, 2)

	suggestions := &mockSuggestionService{
		predictions: preds,
		result: &driving.ActionResult{
			Document:      "doc1",
			Anchor:        domain.Offset{Begin: 0, End: 5},
			AnnotationRef: "ann-1",
		},
		details: []driving.SuggestionDetail{
			{RecommenderName: "NER", Label: "PER", Score: 0.9},
			{RecommenderName: "Gazetteer", Label: "ORG", Score: 0.4},
		},
	}
	withServices(t, &Services{
		Suggestions:    suggestions,
		Recommendation: &mockRecommendationService{},
		Corpus:         &mockCorpusService{texts: map[string]string{"doc1": "Alice met Bob in Paris."}},
	})

	input := strings.Join([]string{
		"list",
		"accept 1",
		"reject 2 wrong label",
		"show 1",
		"accept 9",
		"accept",
		"bogus",
		"switch",
		"quit",
		"accept 1",
	}, "\n")

	out, err := runCommandWithInput(t, input, "review", "-u", "alice", "-p", "p1")
	require.NoError(t, err)

	assert.Equal(t, []string{preds.VID(&offered[0])}, suggestions.accepted)
	assert.Equal(t, []string{preds.VID(&offered[1])}, suggestions.rejected)
	assert.Equal(t, "wrong label", suggestions.lastReason)

	assert.Contains(t, out, "(2 offered)")
	assert.Contains(t, out, "Accepted value=PER at 0-5 in doc1 as ann-1")
	assert.Contains(t, out, "Rejected value=knows")
	assert.Contains(t, out, "Alice met Bob")
	assert.Contains(t, out, "Gazetteer")
	assert.Contains(t, out, "no suggestion 9")
	assert.Contains(t, out, "missing suggestion number")
	assert.Contains(t, out, `unknown command "bogus"`)
	assert.Contains(t, out, "Suggestions are up to date.")
}

func TestReviewCmd_EndOfInput(t *testing.T) {
	withServices(t, &Services{
		Suggestions:    &mockSuggestionService{predictions: testPredictions(t)},
		Recommendation: &mockRecommendationService{},
	})

	out, err := runCommandWithInput(t, "list", "review", "-u", "alice", "-p", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "review> ")
}

func TestReviewCmd_ActionError(t *testing.T) {
	withServices(t, &Services{
		Suggestions: &mockSuggestionService{
			predictions: testPredictions(t),
			err:         domain.ErrSuggestionNotFound,
		},
		Recommendation: &mockRecommendationService{},
	})

	out, err := runCommandWithInput(t, "accept 1\nquit\n", "review", "-u", "alice", "-p", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "suggestion no longer available")
}

func TestReviewCmd_PredictFails(t *testing.T) {
	withServices(t, &Services{
		Suggestions:    &mockSuggestionService{},
		Recommendation: &mockRecommendationService{waitErr: errors.New("boom")},
	})

	_, err := runCommand(t, "review", "-u", "alice", "-p", "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestReadLine(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("  accept 1 \nlast"))

	line, ok := readLine(reader)
	assert.True(t, ok)
	assert.Equal(t, "accept 1", line)

	line, ok = readLine(reader)
	assert.True(t, ok)
	assert.Equal(t, "last", line)

	_, ok = readLine(reader)
	assert.False(t, ok)
}
