// Package mcp provides an MCP (Model Context Protocol) server adapter for the
// suggestion engine. It lets AI assistants list predicted suggestions and
// accept or reject them on behalf of a user.
package mcp

import "errors"

// ErrMissingSuggestionService is returned when the suggestion service is not provided.
var ErrMissingSuggestionService = errors.New("mcp: suggestion service is required")
