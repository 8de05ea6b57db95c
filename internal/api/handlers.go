package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/gameresult-crawler/internal/game"
)

const (
	defaultLatestLimit  = 1
	maxLatestLimit      = 100
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

type gameSummary struct {
	Type     game.Type `json:"type"`
	Name     string    `json:"name"`
	Endpoint string    `json:"endpoint"`
}

type recordView struct {
	ID          string          `json:"id"`
	GameType    game.Type       `json:"game_type,omitempty"`
	SessionID   string          `json:"session_id"`
	Fingerprint string          `json:"result_md5"`
	Data        json.RawMessage `json:"result_data"`
	Timestamp   string          `json:"timestamp"`
}

func toView(rec game.Record) recordView {
	data := rec.Payload
	if !json.Valid(data) {
		data = json.RawMessage(`{}`)
	}
	return recordView{
		ID:          rec.ID,
		GameType:    rec.GameType,
		SessionID:   rec.SessionID,
		Fingerprint: rec.Fingerprint,
		Data:        data,
		Timestamp:   rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Game result crawler API",
		"version": Version,
		"status":  "running",
	})
}

func (s *Server) listGames(w http.ResponseWriter, _ *http.Request) {
	defs := game.Definitions()
	games := make([]gameSummary, 0, len(defs))
	for _, def := range defs {
		games = append(games, gameSummary{Type: def.Type, Name: def.DisplayName, Endpoint: "/games/" + def.Type.String()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": games})
}

// gameFromPath resolves {game_type} or writes a 404.
func (s *Server) gameFromPath(w http.ResponseWriter, r *http.Request) (game.Definition, bool) {
	def, ok := game.Lookup(game.Type(chi.URLParam(r, "game_type")))
	if !ok {
		writeError(w, http.StatusNotFound, "Game type not found")
		return game.Definition{}, false
	}
	return def, true
}

func (s *Server) gameInfo(w http.ResponseWriter, r *http.Request) {
	def, ok := s.gameFromPath(w, r)
	if !ok {
		return
	}
	base := "/games/" + def.Type.String()
	writeJSON(w, http.StatusOK, map[string]any{
		"game_type": def.Type,
		"name":      def.DisplayName,
		"endpoints": map[string]string{
			"latest":  base + "/latest",
			"history": base + "/history",
			"current": base + "/current",
		},
	})
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) {
	def, ok := s.gameFromPath(w, r)
	if !ok {
		return
	}
	limit, ok := intQuery(w, r, "limit", defaultLatestLimit, 1, maxLatestLimit)
	if !ok {
		return
	}
	records, err := s.deps.Store.Latest(r.Context(), def.Type, limit, 0)
	if err != nil {
		s.logger.Error("load latest results", zap.String("game_type", def.Type.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error retrieving results")
		return
	}
	views := toViews(records)
	resp := map[string]any{"game_type": def.Type, "results": views, "count": len(views)}
	if len(views) == 0 {
		resp["message"] = "No results found"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	def, ok := s.gameFromPath(w, r)
	if !ok {
		return
	}
	limit, ok := intQuery(w, r, "limit", defaultHistoryLimit, 1, maxHistoryLimit)
	if !ok {
		return
	}
	offset, ok := intQuery(w, r, "offset", 0, 0, -1)
	if !ok {
		return
	}
	records, err := s.deps.Store.Latest(r.Context(), def.Type, limit, offset)
	if err != nil {
		s.logger.Error("load history", zap.String("game_type", def.Type.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error retrieving history")
		return
	}
	views := toViews(records)
	writeJSON(w, http.StatusOK, map[string]any{
		"game_type": def.Type,
		"results":   views,
		"count":     len(views),
		"offset":    offset,
		"limit":     limit,
	})
}

func (s *Server) current(w http.ResponseWriter, r *http.Request) {
	def, ok := s.gameFromPath(w, r)
	if !ok {
		return
	}
	if s.deps.Results != nil {
		if c, found := s.deps.Results.CurrentResult(r.Context(), def.Type); found {
			writeJSON(w, http.StatusOK, map[string]any{
				"game_type": def.Type,
				"result":    c,
				"source":    "live",
				"timestamp": s.deps.Clock.Now().UTC().Format(time.RFC3339),
			})
			return
		}
	}
	records, err := s.deps.Store.Latest(r.Context(), def.Type, 1, 0)
	if err != nil {
		s.logger.Error("load fallback result", zap.String("game_type", def.Type.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error getting current result")
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, "No current result available")
		return
	}
	view := toView(records[0])
	view.GameType = ""
	writeJSON(w, http.StatusOK, map[string]any{
		"game_type": def.Type,
		"result":    view,
		"source":    "database",
		"message":   "Live crawl failed, returning latest from database",
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	types := game.Types()
	byGame := make(map[game.Type]int, len(types))
	total := 0
	resp := map[string]any{
		"supported_games": types,
		"api_calls_total": s.requests.Load(),
		"server_time":     s.deps.Clock.Now().UTC().Format(time.RFC3339),
	}
	for _, gt := range types {
		n, err := s.deps.Store.Count(r.Context(), gt)
		if err != nil {
			s.logger.Warn("count results", zap.String("game_type", gt.String()), zap.Error(err))
			resp["error"] = "Could not retrieve stats"
			writeJSON(w, http.StatusOK, resp)
			return
		}
		byGame[gt] = n
		total += n
	}
	resp["total_game_results"] = total
	resp["results_by_game"] = byGame
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) testNotification(w http.ResponseWriter, r *http.Request) {
	if s.deps.Notifier == nil || len(s.deps.Notifier.Configured()) == 0 {
		writeError(w, http.StatusServiceUnavailable, "No notification channels configured")
		return
	}
	outcomes := s.deps.Notifier.SendTest(r.Context())
	channels := make(map[string]string, len(outcomes))
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			channels[o.Channel] = o.Err.Error()
			failed++
			continue
		}
		channels[o.Channel] = "ok"
	}
	if failed == len(outcomes) {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "Failed to send test notification", "channels": channels})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Test notification sent successfully", "channels": channels})
}

func (s *Server) liveFeed(w http.ResponseWriter, r *http.Request) {
	if s.deps.Live == nil {
		writeError(w, http.StatusNotFound, "live feed disabled")
		return
	}
	s.deps.Live.ServeHTTP(w, r)
}

func toViews(records []game.Record) []recordView {
	out := make([]recordView, 0, len(records))
	for _, rec := range records {
		out = append(out, toView(rec))
	}
	return out
}

// intQuery parses an optional integer query parameter within [lo, hi]. A
// negative hi means unbounded.
func intQuery(w http.ResponseWriter, r *http.Request, key string, def, lo, hi int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || (hi >= 0 && n > hi) {
		msg := key + " must be >= " + strconv.Itoa(lo)
		if hi >= 0 {
			msg = key + " must be between " + strconv.Itoa(lo) + " and " + strconv.Itoa(hi)
		}
		writeError(w, http.StatusUnprocessableEntity, msg)
		return 0, false
	}
	return n, true
}
