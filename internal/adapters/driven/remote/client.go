package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
)

// Ensure Client implements the interface.
var _ driven.RemoteRecommenderClient = (*Client)(nil)

// Default configuration values.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	DefaultRatePerSecond  = 10.0
	DefaultBurst          = 5

	// maxErrorBody bounds the response body kept in API errors.
	maxErrorBody = 512
)

// Config holds configuration for the remote client.
type Config struct {
	// BaseURL is the service root, e.g. http://localhost:5000.
	BaseURL string

	// ConnectTimeout bounds dialing the service (default: 5s).
	ConnectTimeout time.Duration

	// ReadTimeout bounds waiting for response headers (default: 30s).
	ReadTimeout time.Duration

	// RatePerSecond is the sustained request rate (default: 10).
	RatePerSecond float64

	// Burst is the token bucket size (default: 5).
	Burst int
}

// Client is a throttled HTTP client for a remote recommender service.
type Client struct {
	http    *http.Client
	baseURL string
	limiter *rate.Limiter
}

// NewClient creates a client. BaseURL is required.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote base URL: %w", domain.ErrInvalidInput)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("remote base URL: %w", err)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultRatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout
	transport.ResponseHeaderTimeout = cfg.ReadTimeout

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}, nil
}

// CreateDataset creates a dataset. An existing dataset is not an error.
func (c *Client) CreateDataset(ctx context.Context, dataset string) error {
	err := c.do(ctx, "create dataset", http.MethodPost, datasetPath(dataset), nil, nil)
	if domain.APIStatus(err) == http.StatusConflict {
		return nil
	}
	return err
}

// ListDocuments returns the remote versions of every document in a dataset.
func (c *Client) ListDocuments(ctx context.Context, dataset string) (domain.RemoteDatasetState, error) {
	var resp listResponse
	if err := c.do(ctx, "list documents", http.MethodGet, datasetPath(dataset)+"/documents", nil, &resp); err != nil {
		return domain.RemoteDatasetState{}, err
	}
	if len(resp.Names) != len(resp.Versions) {
		return domain.RemoteDatasetState{}, &domain.SyncProtocolError{
			Dataset: dataset,
			Detail:  fmt.Sprintf("%d names but %d versions", len(resp.Names), len(resp.Versions)),
		}
	}

	state := domain.RemoteDatasetState{
		Dataset:  dataset,
		Versions: make(map[string]int64, len(resp.Names)),
	}
	for i, name := range resp.Names {
		version := domain.UnknownVersion
		if resp.Versions[i] != nil {
			version = *resp.Versions[i]
		}
		state.Versions[name] = version
	}
	return state, nil
}

// PutDocument uploads a document into a dataset.
func (c *Client) PutDocument(ctx context.Context, dataset string, doc domain.RemoteDocument) error {
	path := datasetPath(dataset) + "/documents/" + url.PathEscape(doc.Name)
	return c.do(ctx, "put document", http.MethodPut, path, toWire(doc), nil)
}

// DeleteDocument removes a document. A document already gone is not an error.
func (c *Client) DeleteDocument(ctx context.Context, dataset, name string) error {
	path := datasetPath(dataset) + "/documents/" + url.PathEscape(name)
	err := c.do(ctx, "delete document", http.MethodDelete, path, nil, nil)
	if domain.APIStatus(err) == http.StatusNotFound {
		return nil
	}
	return err
}

// Train asks the classifier to train a model on a dataset.
func (c *Client) Train(ctx context.Context, classifier, model, dataset string) error {
	body := trainRequest{ModelName: model, DatasetName: dataset}
	return c.do(ctx, "train", http.MethodPost, classifierPath(classifier)+"/train", body, nil)
}

// Predict returns the document annotated by the classifier's model.
func (c *Client) Predict(ctx context.Context, classifier, model string, doc domain.RemoteDocument) (domain.RemoteDocument, error) {
	body := predictRequest{ModelName: model, Document: toWire(doc)}
	var resp wireDocument
	if err := c.do(ctx, "predict", http.MethodPost, classifierPath(classifier)+"/predict", body, &resp); err != nil {
		return domain.RemoteDocument{}, err
	}
	return fromWire(resp), nil
}

// ListClassifiers returns the classifiers the service offers.
func (c *Client) ListClassifiers(ctx context.Context) ([]domain.ClassifierInfo, error) {
	var resp []classifierResponse
	if err := c.do(ctx, "list classifiers", http.MethodGet, "/classifiers", nil, &resp); err != nil {
		return nil, err
	}
	result := make([]domain.ClassifierInfo, 0, len(resp))
	for _, cl := range resp {
		result = append(result, toClassifierInfo(cl))
	}
	return result, nil
}

// GetClassifier returns info for one classifier.
func (c *Client) GetClassifier(ctx context.Context, name string) (domain.ClassifierInfo, error) {
	var resp classifierResponse
	if err := c.do(ctx, "get classifier", http.MethodGet, classifierPath(name), nil, &resp); err != nil {
		return domain.ClassifierInfo{}, err
	}
	return toClassifierInfo(resp), nil
}

// do sends one throttled request. A nil body sends no payload; a nil out
// discards the response.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	endpoint := c.baseURL + path

	if err := c.limiter.Wait(ctx); err != nil {
		return &domain.ExternalRecommenderAPIError{Op: op, URL: endpoint, Err: err}
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.ExternalRecommenderAPIError{Op: op, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.ExternalRecommenderAPIError{
			Op:         op,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ExternalRecommenderAPIError{
			Op:  op,
			URL: endpoint,
			Err: fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

func datasetPath(dataset string) string {
	return "/datasets/" + url.PathEscape(dataset)
}

func classifierPath(name string) string {
	return "/classifiers/" + url.PathEscape(name)
}
