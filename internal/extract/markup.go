package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/gameresult-crawler/internal/game"
)

type matchKind int

const (
	matchResult matchKind = iota
	matchFingerprint
	matchSession
)

type pattern struct {
	re   *regexp.Regexp
	kind matchKind
}

// patterns are tried in order; the first with any match wins.
var patterns = []pattern{
	{re: regexp.MustCompile(`(?i)result["']?\s*:\s*["']?(\w+)`), kind: matchResult},
	{re: regexp.MustCompile(`(?i)md5["']?\s*:\s*["']?([a-f0-9]{32})`), kind: matchFingerprint},
	{re: regexp.MustCompile(`(?i)session["']?\s*:\s*["']?(\w+)`), kind: matchSession},
	{re: regexp.MustCompile(`(?i)"result_md5"\s*:\s*"([a-f0-9]{32})"`), kind: matchFingerprint},
	{re: regexp.MustCompile(`(?i)data-result["']?\s*=\s*["']([^"']+)`), kind: matchResult},
}

var digitRun = regexp.MustCompile(`\d+`)

// Selectors returns the element selectors scanned for def, most specific first.
func Selectors(def game.Definition) []string {
	gt := def.Type.String()
	return []string{
		fmt.Sprintf("[data-game='%s']", gt),
		fmt.Sprintf(".%s-result", gt),
		fmt.Sprintf("#%s-data", gt),
		".game-result",
		".result-data",
		"[data-result]",
		".md5-result",
	}
}

// ExtractMarkup runs the element scan and then the pattern scan over html.
func (e *Extractor) ExtractMarkup(html string, def game.Definition) (game.Candidate, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.logger.Debug("markup parse failed", zap.String("game_type", def.Type.String()), zap.Error(err))
	} else if c, ok := e.scanElements(doc, def); ok {
		return c, true
	}
	if c, ok := e.scanPatterns(html, def); ok {
		return c, true
	}
	e.logger.Debug("no result in markup", zap.String("game_type", def.Type.String()))
	return game.Candidate{}, false
}

func (e *Extractor) scanElements(doc *goquery.Document, def game.Definition) (game.Candidate, bool) {
	var (
		found game.Candidate
		ok    bool
	)
	for _, selector := range Selectors(def) {
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			found, ok = e.fromElement(s, def)
			return !ok
		})
		if ok {
			return found, true
		}
	}
	return game.Candidate{}, false
}

func (e *Extractor) fromElement(s *goquery.Selection, def game.Definition) (game.Candidate, bool) {
	text := strings.TrimSpace(s.Text())
	attr := strings.TrimSpace(s.AttrOr(attrDataResult, ""))
	if text == "" && attr == "" {
		return game.Candidate{}, false
	}
	raw := attr
	if raw == "" {
		raw = text
	}
	if doc, err := parseDocument([]byte(raw)); err == nil {
		if obj, isObj := doc.(map[string]any); isObj && Accepts(obj) {
			return e.fromDocument(obj, raw, def)
		}
	}
	if text != "" && digitRun.MatchString(text) {
		return e.fromText(text, def)
	}
	return game.Candidate{}, false
}

func (e *Extractor) scanPatterns(html string, def game.Definition) (game.Candidate, bool) {
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		value := m[1]
		switch p.kind {
		case matchFingerprint:
			return e.fromValue(value, value, "", m[0], def)
		case matchSession:
			return e.fromValue(value, "", value, m[0], def)
		default:
			return e.fromValue(value, "", "", m[0], def)
		}
	}
	return game.Candidate{}, false
}
