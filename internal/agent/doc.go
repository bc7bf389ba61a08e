// Package agent contains betbox's core (non-UI) wiring.
//
// It resolves the model/provider configuration, builds the tool registry
// (built-in tools, exchange tools and MCP tools) and assembles the agent
// graphs the transports run.
package agent
