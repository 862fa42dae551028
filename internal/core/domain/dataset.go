package domain

// RemoteDatasetState is the listing of a remote dataset: document name to
// remote version. It is rebuilt on every synchronisation pass.
type RemoteDatasetState struct {
	Dataset  string
	Versions map[string]int64
}

// SyncPlan is the set of remote mutations needed to match the local corpus.
type SyncPlan struct {
	ToDelete []string
	ToSend   []string
}

// IsEmpty reports whether the plan has nothing to do.
func (p SyncPlan) IsEmpty() bool {
	return len(p.ToDelete) == 0 && len(p.ToSend) == 0
}

// SyncReport summarises one synchronisation pass.
type SyncReport struct {
	Dataset   string
	Uploaded  int
	Deleted   int
	Unchanged int
	Failed    []string
}

// RemoteDocument is the payload exchanged with a remote recommender:
// the text plus the annotations of the configured layer/feature.
type RemoteDocument struct {
	Name        string
	Version     int64
	Text        string
	Annotations []RemoteAnnotation
	Relations   []RemoteRelation
}

// RemoteAnnotation is a labelled span in a RemoteDocument.
type RemoteAnnotation struct {
	Begin       int
	End         int
	Label       string
	Score       float64
	Explanation string
}

// RemoteRelation is a labelled relation between two spans in a RemoteDocument.
type RemoteRelation struct {
	Source      Offset
	Target      Offset
	Label       string
	Score       float64
	Explanation string
}

// ClassifierInfo describes a classifier offered by a remote recommender.
type ClassifierInfo struct {
	Name      string
	Status    string
	Model     string
	Trainable bool
}
