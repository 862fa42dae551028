package remote

import "github.com/custodia-labs/suggest/internal/core/domain"

// wireDocument is the document payload of the remote API.
type wireDocument struct {
	Name        string           `json:"name"`
	Version     int64            `json:"version"`
	Text        string           `json:"text"`
	Annotations []wireAnnotation `json:"annotations"`
	Relations   []wireRelation   `json:"relations,omitempty"`
}

type wireAnnotation struct {
	Begin       int      `json:"begin"`
	End         int      `json:"end"`
	Label       string   `json:"label"`
	Score       *float64 `json:"score,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
}

type wireSpan struct {
	Begin int `json:"begin"`
	End   int `json:"end"`
}

type wireRelation struct {
	Source      wireSpan `json:"source"`
	Target      wireSpan `json:"target"`
	Label       string   `json:"label"`
	Score       *float64 `json:"score,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
}

// listResponse carries parallel arrays of document names and versions.
// A null version means the remote version is unknown.
type listResponse struct {
	Names    []string `json:"names"`
	Versions []*int64 `json:"versions"`
}

type trainRequest struct {
	ModelName   string `json:"modelName"`
	DatasetName string `json:"datasetName"`
}

type predictRequest struct {
	ModelName string       `json:"modelName"`
	Document  wireDocument `json:"document"`
}

type classifierResponse struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Model     string `json:"model"`
	Trainable bool   `json:"trainable"`
}

func scorePtr(score float64) *float64 {
	if score == domain.NoScore {
		return nil
	}
	return &score
}

func scoreValue(score *float64) float64 {
	if score == nil {
		return domain.NoScore
	}
	return *score
}

func toWire(doc domain.RemoteDocument) wireDocument {
	w := wireDocument{
		Name:        doc.Name,
		Version:     doc.Version,
		Text:        doc.Text,
		Annotations: make([]wireAnnotation, 0, len(doc.Annotations)),
	}
	for _, a := range doc.Annotations {
		w.Annotations = append(w.Annotations, wireAnnotation{
			Begin:       a.Begin,
			End:         a.End,
			Label:       a.Label,
			Score:       scorePtr(a.Score),
			Explanation: a.Explanation,
		})
	}
	for _, r := range doc.Relations {
		w.Relations = append(w.Relations, wireRelation{
			Source:      wireSpan{Begin: r.Source.Begin, End: r.Source.End},
			Target:      wireSpan{Begin: r.Target.Begin, End: r.Target.End},
			Label:       r.Label,
			Score:       scorePtr(r.Score),
			Explanation: r.Explanation,
		})
	}
	return w
}

func fromWire(w wireDocument) domain.RemoteDocument {
	doc := domain.RemoteDocument{
		Name:    w.Name,
		Version: w.Version,
		Text:    w.Text,
	}
	for _, a := range w.Annotations {
		doc.Annotations = append(doc.Annotations, domain.RemoteAnnotation{
			Begin:       a.Begin,
			End:         a.End,
			Label:       a.Label,
			Score:       scoreValue(a.Score),
			Explanation: a.Explanation,
		})
	}
	for _, r := range w.Relations {
		doc.Relations = append(doc.Relations, domain.RemoteRelation{
			Source:      domain.Offset{Begin: r.Source.Begin, End: r.Source.End},
			Target:      domain.Offset{Begin: r.Target.Begin, End: r.Target.End},
			Label:       r.Label,
			Score:       scoreValue(r.Score),
			Explanation: r.Explanation,
		})
	}
	return doc
}

func toClassifierInfo(c classifierResponse) domain.ClassifierInfo {
	return domain.ClassifierInfo{
		Name:      c.Name,
		Status:    c.Status,
		Model:     c.Model,
		Trainable: c.Trainable,
	}
}
