// Package application wires the service together: it seeds the item catalog
// from the configured file, builds the planner, handlers and router, and
// creates the HTTP server, leaving the main package to CLI parsing and
// shutdown orchestration.
package application
