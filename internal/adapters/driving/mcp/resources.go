package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for project resources.
	uriScheme = "suggest://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Template for project documents.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "projects/{projectId}/documents",
		Name:        "project-documents",
		Description: "Documents of a project",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	// Template for document text.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "projects/{projectId}/documents/{name}",
		Name:        "document-text",
		Description: "Text of a specific document",
		MIMEType:    "text/plain",
	}, s.handleDocumentTextResource)
}

// handleDocumentsResource returns the documents of a project.
func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Corpus == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	projectID, name := parseDocumentURI(req.Params.URI)
	if projectID == "" || name != "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	docs, err := s.ports.Corpus.Documents(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	type docInfo struct {
		Name      string `json:"name"`
		UpdatedAt string `json:"updated_at,omitempty"`
	}

	infos := make([]docInfo, len(docs))
	for i := range docs {
		infos[i] = docInfo{Name: docs[i].Name}
		if !docs[i].UpdatedAt.IsZero() {
			infos[i].UpdatedAt = docs[i].UpdatedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling documents: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleDocumentTextResource returns the text of a specific document.
func (s *Server) handleDocumentTextResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Corpus == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	projectID, name := parseDocumentURI(req.Params.URI)
	if projectID == "" || name == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	text, err := s.ports.Corpus.DocumentText(ctx, projectID, name)
	if errors.Is(err, domain.ErrDocumentNotFound) || errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     text,
		}},
	}, nil
}

// parseDocumentURI splits suggest://projects/{projectId}/documents[/{name}].
// Document names may contain slashes; a percent-encoded name is unescaped.
func parseDocumentURI(uri string) (projectID, name string) {
	const prefix = uriScheme + "projects/"
	const marker = "/documents"

	if !strings.HasPrefix(uri, prefix) {
		return "", ""
	}
	rest := strings.TrimPrefix(uri, prefix)

	i := strings.Index(rest, marker)
	if i <= 0 {
		return "", ""
	}
	projectID, rest = rest[:i], rest[i+len(marker):]
	if strings.Contains(projectID, "/") {
		return "", ""
	}
	if rest == "" {
		return projectID, ""
	}
	if !strings.HasPrefix(rest, "/") || len(rest) == 1 {
		return "", ""
	}
	name, err := url.PathUnescape(rest[1:])
	if err != nil {
		return "", ""
	}
	return projectID, name
}
