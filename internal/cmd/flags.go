package cmd

import (
	"regexp"
	"strings"
)

var helpText = map[string]string{
	"model":           "Model the agent runs on",
	"api":             "API the agent model is served from",
	"temp":            "Agent temperature, negative uses the provider default",
	"topp":            "Agent TopP, negative uses the provider default",
	"max-tokens":      "Maximum number of tokens per agent reply",
	"final-model":     "Model that writes the final answer",
	"final-api":       "API the final model is served from",
	"search-model":    "Model used by the search command",
	"search-api":      "API the search model is served from",
	"persona":         "Template for the final answer's system prompt, or a file:// path",
	"system":          "System prompt given to the agent",
	"max-tool-rounds": "Tool rounds allowed per turn before giving up",
	"turn-timeout":    "Maximum time a single turn may take",
	"http-proxy":      "HTTP proxy to use for API requests",
	"word-wrap":       "Wrap formatted output at specific width",
	"mcp-disable":     "Disable specific MCP servers",
	"log-level":       "Minimum log level: debug, info, warn or error",
	"log-format":      "Log encoding: console or json",
	"debug":           "Log at debug level",
	"quiet":           "Quiet mode (hide status and confirmations)",
	"help":            "Show help and exit",
	"version":         "Show version and exit",
	"listen":          "Address the chat server listens on",
	"session-ttl":     "Forget chat sessions idle for this long",
}

var (
	shorthandFlagRe   = regexp.MustCompile(`unknown shorthand flag: '.*' in (-\w)`)
	invalidArgumentRe = regexp.MustCompile(`invalid argument ".*" for "(.*)" flag: .*`)
)

// flagParseError is a wrapper around flag parse errors that extracts the
// offending flag so it can be highlighted.
type flagParseError struct {
	err    error
	reason string
	flag   string
}

func newFlagParseError(err error) flagParseError {
	var reason, flag string
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "flag needs an argument:"):
		reason = "Flag %s needs an argument."
		if fields := strings.Fields(msg); len(fields) > 0 {
			flag = fields[len(fields)-1]
		}
	case strings.HasPrefix(msg, "unknown flag:"):
		reason = "Flag %s is missing."
		flag = strings.TrimPrefix(msg, "unknown flag: ")
	case strings.HasPrefix(msg, "unknown shorthand flag:"):
		reason = "Short flag %s is missing."
		if parts := shorthandFlagRe.FindStringSubmatch(msg); len(parts) > 1 {
			flag = parts[1]
		}
	case strings.HasPrefix(msg, "invalid argument"):
		reason = "Flag %s have an invalid argument."
		if parts := invalidArgumentRe.FindStringSubmatch(msg); len(parts) > 1 {
			flag = parts[1]
		}
	default:
		reason = msg
	}
	return flagParseError{err: err, reason: reason, flag: flag}
}

func (f flagParseError) Error() string {
	return f.err.Error()
}

func (f flagParseError) ReasonFormat() string {
	return f.reason
}

func (f flagParseError) Flag() string {
	return f.flag
}
