package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"pulsequiz/internal/app"
	"pulsequiz/internal/domain"
	"pulsequiz/internal/theme"
)

const hostTokenHeader = "X-Host-Token"

// Handler exposes the session core over REST, including the poll fallback
// for clients whose networks block WebSockets.
type Handler struct {
	service *app.Service
	themes  *theme.Drafter // nil when no generator is configured
}

func NewHandler(service *app.Service, themes *theme.Drafter) *Handler {
	return &Handler{service: service, themes: themes}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidPhase), errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("unclassified handler error")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decode[T any](w http.ResponseWriter, r *http.Request, into *T) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.CreateSession())
}

type joinRequest struct {
	Nickname string `json:"nickname"`
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Nickname == "" {
		writeError(w, domain.ErrValidation)
		return
	}
	player, err := h.service.Join(r.PathValue("code"), req.Nickname)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"playerId": player.ID})
}

func (h *Handler) Observe(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.JoinObserver(r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"observerId": id})
}

type questionsRequest struct {
	Questions []domain.Question `json:"questions"`
}

func (h *Handler) UploadQuestions(w http.ResponseWriter, r *http.Request) {
	var req questionsRequest
	if !decode(w, r, &req) {
		return
	}
	count, err := h.service.UploadQuestions(r.PathValue("code"), r.Header.Get(hostTokenHeader), req.Questions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": count})
}

func (h *Handler) AppendQuestions(w http.ResponseWriter, r *http.Request) {
	var req questionsRequest
	if !decode(w, r, &req) {
		return
	}
	total, err := h.service.AppendQuestions(r.PathValue("code"), r.Header.Get(hostTokenHeader), req.Questions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "total": total})
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	h.hostAction(w, r, h.service.Start)
}

func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	h.hostAction(w, r, h.service.Advance)
}

func (h *Handler) Reveal(w http.ResponseWriter, r *http.Request) {
	h.hostAction(w, r, h.service.Reveal)
}

func (h *Handler) hostAction(w http.ResponseWriter, r *http.Request, action func(code, hostToken string) error) {
	if err := action(r.PathValue("code"), r.Header.Get(hostTokenHeader)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type answerRequest struct {
	PlayerID      string `json:"playerId"`
	QuestionIndex int    `json:"questionIndex"`
	Choice        int    `json:"choice"`
	ElapsedMs     *int64 `json:"elapsedMs"`
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decode(w, r, &req) {
		return
	}
	elapsed := int64(-1)
	if req.ElapsedMs != nil {
		elapsed = *req.ElapsedMs
	}
	if err := h.service.SubmitAnswer(r.PathValue("code"), req.PlayerID, req.QuestionIndex, req.Choice, elapsed); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Settings domain.GameSettings `json:"settings"`
	}
	if !decode(w, r, &req) {
		return
	}
	applied, err := h.service.UpdateSettings(r.PathValue("code"), r.Header.Get(hostTokenHeader), req.Settings)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "settings": applied})
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Leaderboard(r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

func (h *Handler) QuestionStats(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	stats, err := h.service.QuestionStats(r.PathValue("code"), index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) AnswerStatus(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	status, err := h.service.AnswerStatus(r.PathValue("code"), index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeError(w, domain.ErrValidation)
		return 0, false
	}
	return index, true
}

func (h *Handler) RevealResults(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	playerID := r.URL.Query().Get("playerId")
	if playerID == "" {
		// Host view requires the token.
		if _, err := h.service.Identify(code, domain.RoleHost, r.Header.Get(hostTokenHeader)); err != nil {
			writeError(w, err)
			return
		}
	}
	results, err := h.service.RevealResults(code, playerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// identifyCaller resolves the caller's role for the poll endpoints: host
// token first, then player id, then observer id.
func (h *Handler) identifyCaller(r *http.Request) (domain.Role, string, error) {
	code := r.PathValue("code")
	if token := r.Header.Get(hostTokenHeader); token != "" {
		identity, err := h.service.Identify(code, domain.RoleHost, token)
		return domain.RoleHost, identity, err
	}
	if playerID := r.URL.Query().Get("player_id"); playerID != "" {
		identity, err := h.service.Identify(code, domain.RolePlayer, playerID)
		return domain.RolePlayer, identity, err
	}
	if observerID := r.URL.Query().Get("observer_id"); observerID != "" {
		identity, err := h.service.Identify(code, domain.RoleObserver, observerID)
		return domain.RoleObserver, identity, err
	}
	return "", "", domain.ErrValidation
}

// State is the full-snapshot fallback for clients that rotated past the
// event log cap.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	role, identity, err := h.identifyCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	code := r.PathValue("code")
	state, err := h.service.State(code)
	if err != nil {
		writeError(w, err)
		return
	}

	response := map[string]any{"state": state}
	if state.Status == domain.StatusRevealed {
		playerID := ""
		if role == domain.RolePlayer {
			playerID = identity
		}
		if role != domain.RoleObserver {
			if results, err := h.service.RevealResults(code, playerID); err == nil {
				response["revealResults"] = results
			}
		}
	}
	writeJSON(w, http.StatusOK, response)
}

// Events serves the pull fallback: retained events after since_id,
// filtered by the caller's role.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	role, identity, err := h.identifyCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sinceID := int64(-1)
	if raw := r.URL.Query().Get("since_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, domain.ErrValidation)
			return
		}
		sinceID = parsed
	}
	events, lastID, err := h.service.EventsSince(r.PathValue("code"), sinceID, role, identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "lastEventId": lastID})
}

type challengeRequest struct {
	PlayerID      string `json:"playerId"`
	QuestionIndex int    `json:"questionIndex"`
	Note          string `json:"note"`
	Category      string `json:"category"`
	Source        string `json:"source"`
}

func (h *Handler) SubmitChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !decode(w, r, &req) {
		return
	}
	submission, err := h.service.SubmitChallenge(r.PathValue("code"), req.PlayerID, req.QuestionIndex, req.Note, req.Category, req.Source)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "challenge": submission})
}

func (h *Handler) Challenges(w http.ResponseWriter, r *http.Request) {
	board, err := h.service.Challenges(r.PathValue("code"), r.Header.Get(hostTokenHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

type resolveRequest struct {
	Status    domain.ResolutionStatus `json:"status"`
	Verdict   string                  `json:"verdict"`
	Note      string                  `json:"note"`
	Published bool                    `json:"published"`
}

func (h *Handler) ResolveChallenge(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if !decode(w, r, &req) {
		return
	}
	resolution, err := h.service.ResolveChallenge(r.PathValue("code"), r.Header.Get(hostTokenHeader), index, req.Status, req.Verdict, req.Note, req.Published)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "resolution": resolution})
}

func (h *Handler) VerifyChallenge(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	verification, err := h.service.VerifyChallenge(r.Context(), r.PathValue("code"), r.Header.Get(hostTokenHeader), index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "verification": verification})
}

func (h *Handler) PublishVerification(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	var req struct {
		Published bool `json:"published"`
	}
	if !decode(w, r, &req) {
		return
	}
	verification, err := h.service.PublishVerification(r.PathValue("code"), r.Header.Get(hostTokenHeader), index, req.Published)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "verification": verification})
}

type reconcileRequest struct {
	Policy          domain.PolicyKind `json:"policy"`
	AcceptedOptions []int             `json:"acceptedOptions"`
	Actor           string            `json:"actor"`
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	var req reconcileRequest
	if !decode(w, r, &req) {
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = "host"
	}
	entry, err := h.service.Reconcile(r.PathValue("code"), r.Header.Get(hostTokenHeader), index, req.Policy, req.AcceptedOptions, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "audit": entry})
}

func (h *Handler) AuditLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.AuditLog(r.PathValue("code"), r.Header.Get(hostTokenHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit": entries})
}

type themeRequest struct {
	ThemeID string      `json:"themeId"`
	Spec    *theme.Spec `json:"spec"`
}

func (h *Handler) SetTheme(w http.ResponseWriter, r *http.Request) {
	var req themeRequest
	if !decode(w, r, &req) {
		return
	}

	var spec theme.Spec
	switch {
	case req.ThemeID != "":
		builtin, ok := theme.ByID(req.ThemeID)
		if !ok {
			writeError(w, domain.ErrValidation)
			return
		}
		spec = builtin
	case req.Spec != nil:
		spec = theme.Normalize(*req.Spec)
		if issues := theme.Validate(spec); len(issues) > 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid theme", "issues": issues})
			return
		}
	default:
		writeError(w, domain.ErrValidation)
		return
	}

	if err := h.service.SetTheme(r.PathValue("code"), r.Header.Get(hostTokenHeader), spec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "theme": spec})
}

func (h *Handler) DraftTheme(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vibe string `json:"vibe"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Vibe == "" {
		writeError(w, domain.ErrValidation)
		return
	}
	if h.themes == nil {
		writeError(w, domain.ErrUpstreamUnavailable)
		return
	}

	spec, err := h.themes.Draft(r.Context(), req.Vibe)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.SetTheme(r.PathValue("code"), r.Header.Get(hostTokenHeader), spec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "theme": spec})
}

func (h *Handler) DraftQuestions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
		Count int    `json:"count"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Topic == "" {
		writeError(w, domain.ErrValidation)
		return
	}
	// Drafting is host-only even though it does not touch session state.
	if _, err := h.service.Identify(r.PathValue("code"), domain.RoleHost, r.Header.Get(hostTokenHeader)); err != nil {
		writeError(w, err)
		return
	}
	questions, err := h.service.DraftQuestions(r.Context(), req.Topic, req.Count)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	h.hostAction(w, r, h.service.EndSession)
}
