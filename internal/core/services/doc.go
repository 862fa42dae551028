// Package services implements the driving port interfaces.
// Services hold the suggestion engine's core logic: the generation cache,
// background recommender runs, suggestion actions, learning curve evaluation
// and dataset synchronisation with external recommenders. They orchestrate
// calls to driven ports (adapters) and never touch storage or the network
// directly.
package services
