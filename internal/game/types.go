package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type identifies a tracked game variant.
type Type string

const (
	// TaiXiu is the "Tài Xỉu" (big/small) game.
	TaiXiu Type = "tai_xiu"
	// BanDo is the "Bàn Đỏ" game.
	BanDo Type = "ban_do"
)

var (
	// ErrUnknownType is returned when a game type is not part of the catalogue.
	ErrUnknownType = errors.New("unknown game type")
	// ErrNoCandidate marks a strategy that ran to completion without finding a result.
	ErrNoCandidate = errors.New("no result candidate")
	// ErrBlocked marks a strategy that only ever saw anti-bot pages.
	ErrBlocked = errors.New("blocked by bot challenge")
	// ErrNeedsBrowser marks a strategy that only saw pages rendered by script.
	ErrNeedsBrowser = errors.New("page needs a browser")
)

// Definition describes how a game variant is polled and presented.
type Definition struct {
	Type             Type   `json:"game_type"`
	DisplayName      string `json:"name"`
	Endpoint         string `json:"endpoint"`
	FingerprintField string `json:"md5_field"`
}

var catalogue = []Definition{
	{Type: TaiXiu, DisplayName: "Tài Xỉu", Endpoint: "/tai-xiu", FingerprintField: "result_md5"},
	{Type: BanDo, DisplayName: "Bàn Đỏ", Endpoint: "/ban-do", FingerprintField: "result_md5"},
}

// Definitions returns the catalogue in its fixed processing order.
func Definitions() []Definition {
	out := make([]Definition, len(catalogue))
	copy(out, catalogue)
	return out
}

// Types returns the catalogue's game types in processing order.
func Types() []Type {
	out := make([]Type, 0, len(catalogue))
	for _, def := range catalogue {
		out = append(out, def.Type)
	}
	return out
}

// Lookup returns the definition for t.
func Lookup(t Type) (Definition, bool) {
	for _, def := range catalogue {
		if def.Type == t {
			return def, true
		}
	}
	return Definition{}, false
}

// ParseType validates raw against the catalogue.
func ParseType(raw string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := Lookup(t); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, raw)
	}
	return t, nil
}

// String implements fmt.Stringer.
func (t Type) String() string {
	return string(t)
}

// Candidate is an extracted, not yet confirmed, round result.
type Candidate struct {
	GameType    Type           `json:"game_type"`
	Result      string         `json:"result"`
	SessionID   string         `json:"session_id"`
	Fingerprint string         `json:"result_md5"`
	Timestamp   time.Time      `json:"timestamp"`
	RawText     string         `json:"raw_text,omitempty"`
	Source      map[string]any `json:"source,omitempty"`
	Strategy    string         `json:"strategy,omitempty"`
}

// Payload renders the candidate as the JSON document handed to storage.
func (c Candidate) Payload() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal candidate: %w", err)
	}
	return data, nil
}

// Record is a persisted result row.
type Record struct {
	ID          string          `json:"id"`
	GameType    Type            `json:"game_type"`
	SessionID   string          `json:"session_id"`
	Fingerprint string          `json:"result_md5"`
	Payload     json.RawMessage `json:"result_data"`
	CreatedAt   time.Time       `json:"created_at"`
}
