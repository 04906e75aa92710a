package http

import (
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"pulsequiz/internal/app"
	"pulsequiz/internal/theme"
)

// NewRouter wires the REST surface, the poll fallback, and the WebSocket
// endpoint behind a CORS layer.
func NewRouter(service *app.Service, themes *theme.Drafter, allowedOrigins []string) http.Handler {
	h := NewHandler(service, themes)
	ws := NewWSHandler(service, allowedOrigins)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/session", h.CreateSession)
	mux.HandleFunc("DELETE /api/session/{code}", h.EndSession)
	mux.HandleFunc("POST /api/session/{code}/join", h.Join)
	mux.HandleFunc("POST /api/session/{code}/observe", h.Observe)

	mux.HandleFunc("POST /api/session/{code}/questions", h.UploadQuestions)
	mux.HandleFunc("POST /api/session/{code}/questions/append", h.AppendQuestions)
	mux.HandleFunc("POST /api/session/{code}/questions/draft", h.DraftQuestions)

	mux.HandleFunc("POST /api/session/{code}/start", h.Start)
	mux.HandleFunc("POST /api/session/{code}/next", h.Next)
	mux.HandleFunc("POST /api/session/{code}/reveal", h.Reveal)
	mux.HandleFunc("POST /api/session/{code}/answer", h.SubmitAnswer)
	mux.HandleFunc("POST /api/session/{code}/settings", h.UpdateSettings)

	mux.HandleFunc("GET /api/session/{code}/state", h.State)
	mux.HandleFunc("GET /api/session/{code}/events", h.Events)
	mux.HandleFunc("GET /api/session/{code}/leaderboard", h.Leaderboard)
	mux.HandleFunc("GET /api/session/{code}/results", h.RevealResults)
	mux.HandleFunc("GET /api/session/{code}/questions/{index}/stats", h.QuestionStats)
	mux.HandleFunc("GET /api/session/{code}/questions/{index}/answers", h.AnswerStatus)

	mux.HandleFunc("POST /api/session/{code}/challenges", h.SubmitChallenge)
	mux.HandleFunc("GET /api/session/{code}/challenges", h.Challenges)
	mux.HandleFunc("POST /api/session/{code}/challenges/{index}/resolve", h.ResolveChallenge)
	mux.HandleFunc("POST /api/session/{code}/challenges/{index}/verify", h.VerifyChallenge)
	mux.HandleFunc("POST /api/session/{code}/challenges/{index}/publish", h.PublishVerification)
	mux.HandleFunc("POST /api/session/{code}/challenges/{index}/reconcile", h.Reconcile)
	mux.HandleFunc("GET /api/session/{code}/audit", h.AuditLog)

	mux.HandleFunc("POST /api/session/{code}/theme", h.SetTheme)
	mux.HandleFunc("POST /api/session/{code}/theme/draft", h.DraftTheme)

	mux.HandleFunc("GET /ws/session/{code}", ws.ServeWS)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", hostTokenHeader},
	})

	return c.Handler(requestLogger(mux))
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
