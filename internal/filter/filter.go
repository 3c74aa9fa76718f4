// Package filter decides which candidate errors are worth keeping before any
// further processing happens. The predicate is pure: no I/O, deterministic
// for a given configuration.
package filter

import (
	"fmt"
	"regexp"

	"github.com/tjfontaine/beacon-agent/internal/config"
)

// Built-in message patterns for noise that is never actionable: opaque
// cross-origin script errors, the benign ResizeObserver loop warning, and
// the placeholder message browsers emit for non-Error promise rejections.
var defaultPatterns = []string{
	`^Script error\.?$`,
	`ResizeObserver loop (limit exceeded|completed with undelivered notifications)`,
	`^Non-Error promise rejection captured`,
}

// Built-in exact-match messages: transient network conditions that the
// network capture channel already covers with richer records.
var defaultMessages = []string{
	"Network request failed",
	"Failed to fetch",
	"NetworkError when attempting to fetch resource.",
	"Load failed",
	"The operation was aborted.",
	"AbortError",
}

// Built-in URL patterns: browser extensions and internal schemes whose
// failures say nothing about the application.
var defaultURLPatterns = []string{
	`^chrome-extension://`,
	`^moz-extension://`,
	`^safari-(web-)?extension://`,
	`^about:`,
	`^chrome://`,
}

// Filter holds the compiled ignore rules.
type Filter struct {
	patterns    []*regexp.Regexp
	messages    map[string]struct{}
	urlPatterns []*regexp.Regexp
}

// New compiles the built-in rules plus any extensions from cfg.
func New(cfg config.FilterConfig) (*Filter, error) {
	patterns, err := compile(append(append([]string{}, defaultPatterns...), cfg.IgnorePatterns...))
	if err != nil {
		return nil, fmt.Errorf("invalid ignore pattern: %w", err)
	}
	urlPatterns, err := compile(append(append([]string{}, defaultURLPatterns...), cfg.IgnoreURLPatterns...))
	if err != nil {
		return nil, fmt.Errorf("invalid ignore URL pattern: %w", err)
	}

	messages := make(map[string]struct{}, len(defaultMessages)+len(cfg.IgnoreMessages))
	for _, m := range defaultMessages {
		messages[m] = struct{}{}
	}
	for _, m := range cfg.IgnoreMessages {
		messages[m] = struct{}{}
	}

	return &Filter{
		patterns:    patterns,
		messages:    messages,
		urlPatterns: urlPatterns,
	}, nil
}

func compile(exprs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", expr, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// ShouldIgnore reports whether a candidate error should be discarded. Three
// independent rule sets are evaluated; any match discards. url may be empty
// when the candidate has no source location.
func (f *Filter) ShouldIgnore(message, url string) bool {
	for _, re := range f.patterns {
		if re.MatchString(message) {
			return true
		}
	}
	if _, ok := f.messages[message]; ok {
		return true
	}
	if url != "" {
		for _, re := range f.urlPatterns {
			if re.MatchString(url) {
				return true
			}
		}
	}
	return false
}
