// Package detector recognizes responses that only a real browser can get
// past: anti-bot interstitials and script-rendered shells.
package detector

import (
	"bytes"
	"net/http"
	"strings"
)

// Reason explains why a response needs a browser. The zero value means it
// does not.
type Reason string

// Reasons reported by Classify.
const (
	None        Reason = ""
	Challenge   Reason = "challenge"
	EmptyBody   Reason = "empty_body"
	ScriptShell Reason = "script_shell"
	SPAMarker   Reason = "spa_marker"
)

// Heuristic implements a handful of rule-based checks.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var challengeMarkers = [][]byte{
	[]byte("just a moment"),
	[]byte("checking your browser"),
	[]byte("cf-chl"),
	[]byte("cf-browser-verification"),
	[]byte("ddos-guard"),
	[]byte("attention required"),
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
}

// Classify inspects a raw HTTP response.
func (h *Heuristic) Classify(status int, body []byte) Reason {
	lower := bytes.ToLower(body)
	for _, marker := range challengeMarkers {
		if bytes.Contains(lower, marker) {
			return Challenge
		}
	}
	if status == http.StatusForbidden || status == http.StatusServiceUnavailable {
		if bytes.Contains(lower, []byte("cloudflare")) {
			return Challenge
		}
	}
	if status != http.StatusOK {
		return None
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return EmptyBody
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(string(lower)) {
		return ScriptShell
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(lower, marker) {
			return SPAMarker
		}
	}
	return None
}

// scriptDensityHigh reports whether script elements cover a quarter or more
// of an already lowercased document.
func scriptDensityHigh(lower string) bool {
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// malformed tag swallows the rest
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		var nextSearch int
		if relativeEnd := strings.Index(lower[contentStart:], closeTag); relativeEnd == -1 {
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	return scriptCoverage > 0 && scriptCoverage*100/total >= 25
}
