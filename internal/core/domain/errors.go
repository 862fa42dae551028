package domain

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates a collaborator required by the operation is not configured.
	ErrNotImplemented = errors.New("not implemented")

	// ErrMalformedAddress indicates a string that was not produced by the VID encoder.
	ErrMalformedAddress = errors.New("malformed suggestion address")

	// ErrSuggestionNotFound indicates a well-formed VID that does not resolve to a
	// pending suggestion in the active generation. Usually a benign race with
	// background re-prediction.
	ErrSuggestionNotFound = errors.New("suggestion no longer available")

	// ErrGenerationInProgress indicates a recommender run is already computing
	// the incoming generation for the same key.
	ErrGenerationInProgress = errors.New("generation in progress")

	// ErrStaleGeneration indicates a commit was superseded by an invalidation or
	// a newer generation and has been discarded.
	ErrStaleGeneration = errors.New("stale generation")

	// ErrSyncProtocol indicates the remote dataset service returned structurally invalid data.
	ErrSyncProtocol = errors.New("sync protocol error")

	// ErrEvaluationSkipped signals there is not enough data to evaluate.
	// It is informational, not a failure.
	ErrEvaluationSkipped = errors.New("not enough training data")

	// ErrEvaluationUnsupported indicates the recommender's engine cannot be evaluated locally.
	ErrEvaluationUnsupported = errors.New("evaluation not supported by engine")

	// ErrEngineUnavailable indicates no engine is registered for a recommender's tool.
	ErrEngineUnavailable = errors.New("recommendation engine unavailable")

	// Storage collaborator errors.

	// ErrDocumentNotFound indicates the target document has been deleted.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrLayerNotFound indicates the target layer has been removed from the project.
	ErrLayerNotFound = errors.New("layer not found")

	// ErrAnchorNotFound indicates a relation endpoint has no confirmed annotation.
	ErrAnchorNotFound = errors.New("relation anchor not found")
)

// MalformedAddressError describes why a VID string could not be decoded.
type MalformedAddressError struct {
	Input  string
	Reason string
}

func (e *MalformedAddressError) Error() string {
	return fmt.Sprintf("%s: %q: %s", ErrMalformedAddress, e.Input, e.Reason)
}

// Is reports whether target is ErrMalformedAddress.
func (e *MalformedAddressError) Is(target error) bool {
	return target == ErrMalformedAddress
}

// SyncProtocolError reports structurally invalid data returned by a remote dataset service.
type SyncProtocolError struct {
	Dataset string
	Detail  string
}

func (e *SyncProtocolError) Error() string {
	return fmt.Sprintf("%s: dataset %s: %s", ErrSyncProtocol, e.Dataset, e.Detail)
}

// Is reports whether target is ErrSyncProtocol.
func (e *SyncProtocolError) Is(target error) bool {
	return target == ErrSyncProtocol
}

// ExternalRecommenderAPIError represents a network or HTTP failure talking to a
// remote recommender service.
type ExternalRecommenderAPIError struct {
	// Op names the remote call, e.g. "list documents".
	Op string

	// URL is the request URL.
	URL string

	// StatusCode is the HTTP status, zero when no response was received.
	StatusCode int

	// Body is a truncated copy of the response body, if any.
	Body string

	// Err is the underlying transport error, if any.
	Err error
}

func (e *ExternalRecommenderAPIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("external recommender: %s: %v (URL: %s)", e.Op, e.Err, e.URL)
	}
	if e.Body != "" {
		return fmt.Sprintf("external recommender: %s: status %d: %s (URL: %s)", e.Op, e.StatusCode, e.Body, e.URL)
	}
	return fmt.Sprintf("external recommender: %s: status %d (URL: %s)", e.Op, e.StatusCode, e.URL)
}

func (e *ExternalRecommenderAPIError) Unwrap() error {
	return e.Err
}

// IsAPIError checks if the error is an ExternalRecommenderAPIError.
func IsAPIError(err error) bool {
	var apiErr *ExternalRecommenderAPIError
	return errors.As(err, &apiErr)
}

// APIStatus returns the HTTP status carried by an ExternalRecommenderAPIError, or 0.
func APIStatus(err error) int {
	var apiErr *ExternalRecommenderAPIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// ActionError is the user-visible failure of an accept/reject/scroll action.
// It references the specific suggestion the action was addressed to.
type ActionError struct {
	Action Action
	VID    string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s suggestion %s: %v", e.Action, e.VID, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a timeout talking to a remote service.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
