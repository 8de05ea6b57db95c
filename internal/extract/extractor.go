package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/titanous/json5"
	"go.uber.org/zap"

	"github.com/JakeFAU/gameresult-crawler/internal/clock/system"
	"github.com/JakeFAU/gameresult-crawler/internal/game"
	"github.com/JakeFAU/gameresult-crawler/internal/hash/md5"
)

// Field names the structured path recognises.
const (
	FieldResult    = "result"
	FieldTimestamp = "timestamp"
	FieldResultMD5 = "result_md5"
	FieldMD5       = "md5"
	FieldSessionID = "session_id"
	FieldGameType  = "game_type"
)

const (
	attrDataResult   = "data-result"
	pseudoValueRange = 1000
)

var (
	primaryFields   = []string{FieldResult, FieldTimestamp}
	secondaryFields = []string{FieldResultMD5, FieldMD5, FieldSessionID, FieldGameType}
)

// Extractor converts payloads into candidates.
type Extractor struct {
	clock  game.Clock
	hasher game.Hasher
	logger *zap.Logger
}

// Option customises an Extractor.
type Option func(*Extractor)

// WithClock overrides the clock used for timestamps, session ids, and
// pseudo-values.
func WithClock(c game.Clock) Option {
	return func(e *Extractor) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithHasher overrides the fingerprint hasher.
func WithHasher(h game.Hasher) Option {
	return func(e *Extractor) {
		if h != nil {
			e.hasher = h
		}
	}
}

// WithLogger attaches a logger for debug-level miss reporting.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New builds an Extractor with a UTC system clock and an MD5 hasher.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		clock:  system.New(),
		hasher: md5.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract interprets payload for def. Structured documents are decided on
// field presence alone; anything else is treated as markup.
func (e *Extractor) Extract(payload []byte, contentType string, def game.Definition) (game.Candidate, bool) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		e.logger.Debug("empty payload", zap.String("game_type", def.Type.String()))
		return game.Candidate{}, false
	}
	if looksStructured(trimmed, contentType) {
		if doc, err := parseDocument(trimmed); err == nil {
			obj, ok := doc.(map[string]any)
			if !ok || !Accepts(obj) {
				e.logger.Debug("structured payload without result fields", zap.String("game_type", def.Type.String()))
				return game.Candidate{}, false
			}
			return e.fromDocument(obj, "", def)
		}
	}
	return e.ExtractMarkup(string(trimmed), def)
}

// Accepts reports whether doc carries at least one recognised field. Values
// are not inspected.
func Accepts(doc map[string]any) bool {
	for _, key := range primaryFields {
		if _, ok := doc[key]; ok {
			return true
		}
	}
	for _, key := range secondaryFields {
		if _, ok := doc[key]; ok {
			return true
		}
	}
	return false
}

func (e *Extractor) fromDocument(doc map[string]any, raw string, def game.Definition) (game.Candidate, bool) {
	now := e.clock.Now()
	result := stringify(doc[FieldResult])

	sessionID := stringify(doc[FieldSessionID])
	if sessionID == "" {
		sessionID = sessionFor(def.Type, now.Unix())
	}

	fingerprint := e.sourceFingerprint(doc, def)
	if fingerprint == "" {
		var err error
		fingerprint, err = e.hasher.Hash([]byte(result + stringify(doc[FieldTimestamp])))
		if err != nil {
			e.logger.Debug("fingerprint hash failed", zap.Error(err))
			return game.Candidate{}, false
		}
	}

	return game.Candidate{
		GameType:    def.Type,
		Result:      result,
		SessionID:   sessionID,
		Fingerprint: fingerprint,
		Timestamp:   now,
		RawText:     raw,
		Source:      doc,
	}, true
}

func (e *Extractor) sourceFingerprint(doc map[string]any, def game.Definition) string {
	fields := []string{def.FingerprintField, FieldResultMD5, FieldMD5}
	for _, field := range fields {
		if field == "" {
			continue
		}
		if v := stringify(doc[field]); v != "" {
			return v
		}
	}
	return ""
}

// fromValue builds a candidate from a single scraped token. Fingerprints and
// session ids supplied by the match are kept verbatim.
func (e *Extractor) fromValue(value, fingerprint, sessionID, raw string, def game.Definition) (game.Candidate, bool) {
	now := e.clock.Now()
	if sessionID == "" {
		sessionID = sessionFor(def.Type, now.Unix())
	}
	if fingerprint == "" {
		var err error
		fingerprint, err = e.hasher.Hash([]byte(value))
		if err != nil {
			e.logger.Debug("fingerprint hash failed", zap.Error(err))
			return game.Candidate{}, false
		}
	}
	return game.Candidate{
		GameType:    def.Type,
		Result:      value,
		SessionID:   sessionID,
		Fingerprint: fingerprint,
		Timestamp:   now,
		RawText:     raw,
	}, true
}

// fromText scrapes the first run of digits out of text. Without digits a
// time-derived pseudo-value stands in, and the fingerprint is taken over the
// text itself so identical content still dedups.
func (e *Extractor) fromText(text string, def game.Definition) (game.Candidate, bool) {
	if digits := digitRun.FindString(text); digits != "" {
		return e.fromValue(digits, "", "", text, def)
	}
	pseudo := strconv.FormatInt(e.clock.Now().Unix()%pseudoValueRange, 10)
	fingerprint, err := e.hasher.Hash([]byte(text))
	if err != nil {
		e.logger.Debug("fingerprint hash failed", zap.Error(err))
		return game.Candidate{}, false
	}
	return e.fromValue(pseudo, fingerprint, "", text, def)
}

func sessionFor(t game.Type, unix int64) string {
	return fmt.Sprintf("%s_%d", t, unix)
}

func looksStructured(payload []byte, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "json") {
		return true
	}
	switch payload[0] {
	case '{', '[':
		return true
	default:
		return false
	}
}

// parseDocument decodes strict JSON first and falls back to JSON5, which
// tolerates the single quotes and bare keys common in inline attributes.
func parseDocument(raw []byte) (any, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err == nil && !dec.More() {
		return doc, nil
	}
	doc = nil
	if err := json5.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}
