package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

const defaultHistoryLimit = 20

// keyFrom builds the prediction key of a project route.
func keyFrom(c *gin.Context) (domain.PredictionKey, error) {
	user := c.Query("user")
	key := domain.PredictionKey{
		SessionOwner: user,
		DataOwner:    c.DefaultQuery("owner", user),
		ProjectID:    c.Param("project"),
	}
	if err := key.Validate(); err != nil {
		return domain.PredictionKey{}, err
	}
	return key, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ==================== Predictions ====================

func (s *Server) handlePredict(c *gin.Context) {
	key, err := keyFrom(c)
	if err != nil {
		fail(c, err)
		return
	}
	recs := s.ports.Recommendation
	if recs == nil {
		fail(c, domain.ErrNotImplemented)
		return
	}

	trigger := recs.Trigger
	if c.Query("retrain") == "true" {
		trigger = recs.Retrain
	}
	gen, err := trigger(c.Request.Context(), key)
	if err != nil && !errors.Is(err, domain.ErrGenerationInProgress) {
		fail(c, err)
		return
	}

	if c.Query("wait") != "true" {
		c.JSON(http.StatusAccepted, gin.H{
			"success":    true,
			"generation": gen,
			"running":    true,
		})
		return
	}

	if err := recs.Wait(c.Request.Context(), key); err != nil {
		fail(c, err)
		return
	}
	preds := s.ports.Suggestions.GetPredictions(key)
	offered := 0
	for _, doc := range preds.Documents() {
		offered += len(preds.Offered(doc))
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"generation": preds.Generation,
		"running":    false,
		"offered":    offered,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	key, err := keyFrom(c)
	if err != nil {
		fail(c, err)
		return
	}
	if s.ports.Recommendation == nil {
		fail(c, domain.ErrNotImplemented)
		return
	}

	status, err := s.ports.Recommendation.Status(c.Request.Context(), key)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    toStatusView(status),
	})
}

func (s *Server) handlePredictions(c *gin.Context) {
	key, err := keyFrom(c)
	if err != nil {
		fail(c, err)
		return
	}

	preds := s.ports.Suggestions.GetPredictions(key)
	docs := preds.Documents()
	if doc := c.Query("document"); doc != "" {
		docs = []string{doc}
	}
	layer := c.Query("layer")
	all := c.Query("all") == "true"

	views := make([]suggestionView, 0)
	for _, doc := range docs {
		list := preds.Offered(doc)
		if all {
			list = preds.ForDocument(doc)
		}
		for i := range list {
			if layer != "" && list[i].LayerID != layer {
				continue
			}
			views = append(views, toSuggestionView(preds, &list[i]))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"generation":  preds.Generation,
		"suggestions": views,
		"count":       len(views),
	})
}

func (s *Server) handleSwitch(c *gin.Context) {
	key, err := keyFrom(c)
	if err != nil {
		fail(c, err)
		return
	}
	switched := s.ports.Suggestions.SwitchPredictions(key)
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"switched":   switched,
		"generation": s.ports.Suggestions.GetPredictions(key).Generation,
	})
}

// ==================== Suggestions ====================

func (s *Server) handleSuggestion(c *gin.Context) {
	key, err := keyFrom(c)
	if err != nil {
		fail(c, err)
		return
	}
	vid := c.Param("vid")
	if _, err := domain.DecodeVID(vid); err != nil {
		fail(c, err)
		return
	}

	details, ok := s.ports.Suggestions.LookupDetails(key, vid)
	if !ok {
		fail(c, domain.ErrSuggestionNotFound)
		return
	}
	value, pending := s.ports.Suggestions.GetFeatureValue(key, vid)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"vid":     vid,
		"pending": pending,
		"value":   value,
		"details": toDetailViews(details),
	})
}

type actionRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleAction(c *gin.Context) {
	key, err := keyFrom(c)
	if err != nil {
		fail(c, err)
		return
	}

	var req actionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	action := domain.Action(c.Param("action"))
	result, err := s.ports.Suggestions.HandleAction(c.Request.Context(), key, action, c.Param("vid"), req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    toActionView(s.ports.Suggestions.GetPredictions(key), result),
	})
}

// ==================== Documents ====================

func (s *Server) handleDocuments(c *gin.Context) {
	if s.ports.Corpus == nil {
		fail(c, domain.ErrNotImplemented)
		return
	}

	docs, err := s.ports.Corpus.Documents(c.Request.Context(), c.Param("project"))
	if err != nil {
		fail(c, err)
		return
	}
	views := make([]documentView, len(docs))
	for i := range docs {
		views[i] = documentView{Name: docs[i].Name, UpdatedAt: optionalTime(docs[i].UpdatedAt)}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"documents": views,
		"count":     len(views),
	})
}

func (s *Server) handleDocumentText(c *gin.Context) {
	if s.ports.Corpus == nil {
		fail(c, domain.ErrNotImplemented)
		return
	}
	name := strings.TrimPrefix(c.Param("name"), "/")
	if name == "" {
		badRequest(c, "document name is required")
		return
	}

	text, err := s.ports.Corpus.DocumentText(c.Request.Context(), c.Param("project"), name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"name":    name,
		"text":    text,
	})
}

// ==================== Recommenders ====================

func (s *Server) handleSync(c *gin.Context) {
	if s.ports.Sync == nil {
		fail(c, domain.ErrNotImplemented)
		return
	}
	user := c.Query("user")
	if user == "" {
		badRequest(c, "user is required")
		return
	}

	report, err := s.ports.Sync.SyncRecommender(c.Request.Context(), c.Param("id"), user)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": len(report.Failed) == 0,
		"data": syncView{
			Dataset:   report.Dataset,
			Uploaded:  report.Uploaded,
			Deleted:   report.Deleted,
			Unchanged: report.Unchanged,
			Failed:    report.Failed,
		},
	})
}

func (s *Server) handleClassifiers(c *gin.Context) {
	if s.ports.Sync == nil {
		fail(c, domain.ErrNotImplemented)
		return
	}

	infos, err := s.ports.Sync.Classifiers(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	views := make([]classifierView, len(infos))
	for i, info := range infos {
		views[i] = classifierView(info)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"classifiers": views,
	})
}

func (s *Server) handleEvaluate(c *gin.Context) {
	if s.ports.Corpus == nil || s.ports.Evaluation == nil {
		fail(c, domain.ErrNotImplemented)
		return
	}
	user := c.Query("user")
	if user == "" {
		badRequest(c, "user is required")
		return
	}

	ctx := c.Request.Context()
	rec, corpus, err := s.ports.Corpus.LoadCorpus(ctx, c.Param("id"), user)
	if err != nil {
		fail(c, err)
		return
	}

	views := make([]evaluationView, 0)
	for result, err := range s.ports.Evaluation.Evaluate(ctx, *rec, corpus, s.ports.splitter()) {
		if err != nil {
			fail(c, err)
			return
		}
		views = append(views, toEvaluationView(result))
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"recommender": rec.ID,
		"results":     views,
	})
}

// ==================== Tasks ====================

func (s *Server) handleTasks(c *gin.Context) {
	if s.ports.Scheduler == nil {
		fail(c, domain.ErrNotImplemented)
		return
	}

	tasks, err := s.ports.Scheduler.Tasks(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	views := make([]taskView, len(tasks))
	for i := range tasks {
		views[i] = toTaskView(tasks[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tasks":   views,
	})
}

func (s *Server) handleTaskHistory(c *gin.Context) {
	if s.ports.Scheduler == nil {
		fail(c, domain.ErrNotImplemented)
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	results, err := s.ports.Scheduler.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	views := make([]resultView, len(results))
	for i := range results {
		views[i] = toResultView(results[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"history": views,
	})
}
