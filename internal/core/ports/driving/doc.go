// Package driving defines interfaces that external actors (editor UI, CLI,
// HTTP and MCP adapters) use to interact with the suggestion engine. These
// are the "driving" ports in hexagonal architecture terminology.
//
// Every operation takes the (session owner, data owner, project) triple as an
// explicit domain.PredictionKey; there is no ambient session state.
//
// Implementations of these interfaces live in internal/core/services.
package driving
