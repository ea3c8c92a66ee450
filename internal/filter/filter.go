// Package filter evaluates whether a SharePoint item is eligible for
// mirroring. It is a pure predicate over (path, name, size) — no I/O, no
// catalog or Graph access — so it can be re-evaluated cheaply whenever
// configuration changes.
package filter

import (
	"path"
	"strings"
)

// Reason names why an item was rejected.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonTooLarge         Reason = "too_large"
	ReasonNotIncluded      Reason = "not_included_extension"
	ReasonExcludedExt      Reason = "excluded_extension"
	ReasonNotIncludedPath  Reason = "not_included_path"
	ReasonNoPatternMatch   Reason = "no_pattern_match"
	ReasonPatternExcluded  Reason = "pattern_excluded"
)

// Config holds the rules applied by Filter.Evaluate, mirroring the
// sync.* configuration keys.
type Config struct {
	MaxSizeBytes      int64
	IncludeExtensions []string // lowercase, without leading dot
	ExcludeExtensions []string
	IncludePaths      []string
	PathPatterns      []string // a leading "!" negates the pattern
}

// Filter evaluates items against a fixed Config.
type Filter struct {
	cfg Config
}

// New builds a Filter, lowercasing and normalizing extension lists so
// Evaluate can compare case-insensitively.
func New(cfg Config) *Filter {
	cfg.IncludeExtensions = normalizeExts(cfg.IncludeExtensions)
	cfg.ExcludeExtensions = normalizeExts(cfg.ExcludeExtensions)
	return &Filter{cfg: cfg}
}

func normalizeExts(exts []string) []string {
	out := make([]string, len(exts))
	for i, e := range exts {
		out[i] = strings.ToLower(strings.TrimPrefix(e, "."))
	}
	return out
}

// Evaluate applies the five rules in order and returns whether itemPath
// is eligible, plus a Reason when it is not.
func (f *Filter) Evaluate(itemPath, name string, size int64) (bool, Reason) {
	if f.cfg.MaxSizeBytes > 0 && size > f.cfg.MaxSizeBytes {
		return false, ReasonTooLarge
	}

	ext := extensionOf(name)

	if len(f.cfg.IncludeExtensions) > 0 && !contains(f.cfg.IncludeExtensions, ext) {
		return false, ReasonNotIncluded
	}

	if contains(f.cfg.ExcludeExtensions, ext) {
		return false, ReasonExcludedExt
	}

	if len(f.cfg.IncludePaths) > 0 && !matchesAnyPrefix(itemPath, f.cfg.IncludePaths) {
		return false, ReasonNotIncludedPath
	}

	if len(f.cfg.PathPatterns) > 0 {
		return evaluatePatterns(itemPath, f.cfg.PathPatterns)
	}

	return true, ReasonNone
}

func extensionOf(name string) string {
	ext := path.Ext(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func contains(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

// matchesAnyPrefix reports whether itemPath begins with one of prefixes
// at a path boundary: equal, or followed by '/'.
func matchesAnyPrefix(itemPath string, prefixes []string) bool {
	for _, p := range prefixes {
		if itemPath == p {
			return true
		}
		if strings.HasPrefix(itemPath, p) && len(itemPath) > len(p) && itemPath[len(p)] == '/' {
			return true
		}
	}
	return false
}

// evaluatePatterns runs the glob rules first-match-wins: a pattern
// beginning with '!' rejects on match, a plain pattern accepts on
// match, and falling off the end (no pattern matched) rejects.
func evaluatePatterns(itemPath string, patterns []string) (bool, Reason) {
	for _, raw := range patterns {
		negate := strings.HasPrefix(raw, "!")
		pattern := raw
		if negate {
			pattern = raw[1:]
		}
		if matchGlob(pattern, itemPath) {
			if negate {
				return false, ReasonPatternExcluded
			}
			return true, ReasonNone
		}
	}
	return false, ReasonNoPatternMatch
}
