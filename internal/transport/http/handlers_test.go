package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonboulle/clockwork"

	"pulsequiz/internal/app"
	"pulsequiz/internal/domain"
	"pulsequiz/internal/infra/memory"
	"pulsequiz/internal/realtime"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.Service) {
	t.Helper()
	clock := clockwork.NewRealClock()
	service := app.NewService(memory.NewSessionStore(), realtime.NewHub(0, clock), nil, clock, domain.GameSettings{
		TimerSeconds:        15,
		AutoProgressPercent: 90,
	})
	server := httptest.NewServer(NewRouter(service, nil, []string{"*"}))
	t.Cleanup(server.Close)
	return server, service
}

func doJSON(t *testing.T, method, url, hostToken string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if hostToken != "" {
		req.Header.Set("X-Host-Token", hostToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func createSession(t *testing.T, server *httptest.Server) (code, hostToken string) {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/session", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create: status %d", resp.StatusCode)
	}
	code, _ = body["code"].(string)
	hostToken, _ = body["hostToken"].(string)
	if code == "" || hostToken == "" {
		t.Fatalf("missing credentials: %+v", body)
	}
	return code, hostToken
}

func sampleQuestions() []map[string]any {
	return []map[string]any{
		{
			"question": "What is 2 + 2?",
			"options":  []string{"3", "4", "5", "22"},
			"correct":  1,
		},
		{
			"question": "Which planet is closest to the sun?",
			"options":  []string{"Venus", "Earth", "Mercury", "Mars"},
			"correct":  2,
			"points":   2,
		},
	}
}

func TestRestGameFlow(t *testing.T) {
	server, _ := newTestServer(t)
	code, hostToken := createSession(t, server)
	base := server.URL + "/api/session/" + code

	resp, body := doJSON(t, http.MethodPost, base+"/join", "", map[string]string{"nickname": "Ann"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join: status %d", resp.StatusCode)
	}
	annID, _ := body["playerId"].(string)
	if annID == "" {
		t.Fatalf("missing player id: %+v", body)
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/questions", hostToken, map[string]any{"questions": sampleQuestions()})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, base+"/start", hostToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/answer", "", map[string]any{
		"playerId": annID, "questionIndex": 0, "choice": 1, "elapsedMs": 1200,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("answer: status %d", resp.StatusCode)
	}

	// The playing-phase snapshot must not leak answers.
	resp, body = doJSON(t, http.MethodGet, base+"/state?player_id="+annID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state: status %d", resp.StatusCode)
	}
	state := body["state"].(map[string]any)
	questions := state["questions"].([]any)
	if correct := questions[0].(map[string]any)["correct"].(float64); correct != -1 {
		t.Fatalf("correct index leaked while playing: %v", correct)
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/next", hostToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("next: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, base+"/reveal", hostToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reveal: status %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/results?playerId="+annID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("results: status %d", resp.StatusCode)
	}
	results := body["results"].(map[string]any)
	players := results["players"].([]any)
	first := players[0].(map[string]any)
	if first["score"].(float64) != 1 || first["rank"].(float64) != 1 {
		t.Fatalf("unexpected standings: %+v", first)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/leaderboard", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("leaderboard: status %d", resp.StatusCode)
	}
	if entries := body["leaderboard"].([]any); len(entries) != 1 {
		t.Fatalf("expected one leaderboard row, got %d", len(entries))
	}
}

func TestRestErrorMapping(t *testing.T) {
	server, _ := newTestServer(t)
	code, hostToken := createSession(t, server)
	base := server.URL + "/api/session/" + code

	cases := []struct {
		name   string
		invoke func() *http.Response
		want   int
	}{
		{
			"unknown session", func() *http.Response {
				resp, _ := doJSON(t, http.MethodGet, server.URL+"/api/session/NOPE42/leaderboard", "", nil)
				return resp
			}, http.StatusNotFound,
		},
		{
			"bad host token", func() *http.Response {
				resp, _ := doJSON(t, http.MethodPost, base+"/start", "wrong", nil)
				return resp
			}, http.StatusForbidden,
		},
		{
			"empty question batch", func() *http.Response {
				resp, _ := doJSON(t, http.MethodPost, base+"/questions", hostToken, map[string]any{"questions": []any{}})
				return resp
			}, http.StatusBadRequest,
		},
		{
			"start without questions", func() *http.Response {
				resp, _ := doJSON(t, http.MethodPost, base+"/start", hostToken, nil)
				return resp
			}, http.StatusBadRequest,
		},
		{
			"settings out of range", func() *http.Response {
				resp, _ := doJSON(t, http.MethodPost, base+"/settings", hostToken, map[string]any{
					"settings": map[string]any{"timerSeconds": 0, "autoProgressPercent": 150},
				})
				return resp
			}, http.StatusBadRequest,
		},
		{
			"draft without generator", func() *http.Response {
				resp, _ := doJSON(t, http.MethodPost, base+"/questions/draft", hostToken, map[string]any{"topic": "space"})
				return resp
			}, http.StatusBadGateway,
		},
		{
			"state without identity", func() *http.Response {
				resp, _ := doJSON(t, http.MethodGet, base+"/state", "", nil)
				return resp
			}, http.StatusBadRequest,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if resp := tc.invoke(); resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}
}

func TestDuplicateConflicts(t *testing.T) {
	server, _ := newTestServer(t)
	code, hostToken := createSession(t, server)
	base := server.URL + "/api/session/" + code

	_, body := doJSON(t, http.MethodPost, base+"/join", "", map[string]string{"nickname": "Ann"})
	annID := body["playerId"].(string)
	resp, _ := doJSON(t, http.MethodPost, base+"/join", "", map[string]string{"nickname": "ann"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate nickname: expected 409, got %d", resp.StatusCode)
	}

	doJSON(t, http.MethodPost, base+"/questions", hostToken, map[string]any{"questions": sampleQuestions()})
	doJSON(t, http.MethodPost, base+"/start", hostToken, nil)

	answer := map[string]any{"playerId": annID, "questionIndex": 0, "choice": 1}
	doJSON(t, http.MethodPost, base+"/answer", "", answer)
	resp, _ = doJSON(t, http.MethodPost, base+"/answer", "", answer)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate answer: expected 409, got %d", resp.StatusCode)
	}
}

func TestEventPolling(t *testing.T) {
	server, _ := newTestServer(t)
	code, hostToken := createSession(t, server)
	base := server.URL + "/api/session/" + code

	_, body := doJSON(t, http.MethodPost, base+"/join", "", map[string]string{"nickname": "Ann"})
	annID := body["playerId"].(string)
	doJSON(t, http.MethodPost, base+"/questions", hostToken, map[string]any{"questions": sampleQuestions()})

	resp, body := doJSON(t, http.MethodGet, base+"/events?since_id=-1", hostToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("events: status %d", resp.StatusCode)
	}
	hostEvents := body["events"].([]any)
	lastID := body["lastEventId"].(float64)

	resp, body = doJSON(t, http.MethodGet, base+"/events?since_id=-1&player_id="+annID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("player events: status %d", resp.StatusCode)
	}
	playerEvents := body["events"].([]any)
	if len(playerEvents) >= len(hostEvents) {
		t.Fatalf("player should see fewer events than host: %d vs %d", len(playerEvents), len(hostEvents))
	}

	resp, body = doJSON(t, http.MethodGet, fmt.Sprintf("%s/events?since_id=%d", base, int(lastID)), hostToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resume: status %d", resp.StatusCode)
	}
	if remaining := body["events"].([]any); len(remaining) != 0 {
		t.Fatalf("expected nothing past lastEventId, got %d", len(remaining))
	}
}

func TestChallengeWorkflowOverRest(t *testing.T) {
	server, _ := newTestServer(t)
	code, hostToken := createSession(t, server)
	base := server.URL + "/api/session/" + code

	_, body := doJSON(t, http.MethodPost, base+"/join", "", map[string]string{"nickname": "Ann"})
	annID := body["playerId"].(string)
	doJSON(t, http.MethodPost, base+"/questions", hostToken, map[string]any{"questions": sampleQuestions()})
	doJSON(t, http.MethodPost, base+"/start", hostToken, nil)
	doJSON(t, http.MethodPost, base+"/answer", "", map[string]any{"playerId": annID, "questionIndex": 0, "choice": 3})

	resp, _ := doJSON(t, http.MethodPost, base+"/challenges", "", map[string]any{
		"playerId": annID, "questionIndex": 0, "note": "22 is four characters", "category": "ambiguous",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("challenge: status %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/challenges", hostToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("board: status %d", resp.StatusCode)
	}
	if subs := body["submissions"].([]any); len(subs) != 1 {
		t.Fatalf("expected one submission, got %d", len(subs))
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/challenges/0/resolve", hostToken, map[string]any{
		"status": "resolved", "verdict": "overturned", "published": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve: status %d", resp.StatusCode)
	}

	// Reconciliation is gated on reveal.
	resp, _ = doJSON(t, http.MethodPost, base+"/challenges/0/reconcile", hostToken, map[string]any{
		"policy": "accept_multiple", "acceptedOptions": []int{3},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected reconcile gated before reveal, got %d", resp.StatusCode)
	}

	doJSON(t, http.MethodPost, base+"/reveal", hostToken, nil)
	resp, body = doJSON(t, http.MethodPost, base+"/challenges/0/reconcile", hostToken, map[string]any{
		"policy": "accept_multiple", "acceptedOptions": []int{3},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reconcile: status %d", resp.StatusCode)
	}
	audit := body["audit"].(map[string]any)
	deltas := audit["deltas"].(map[string]any)
	if deltas[annID].(float64) != 1 {
		t.Fatalf("expected Ann's wrong answer accepted, got %+v", deltas)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/audit", hostToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit: status %d", resp.StatusCode)
	}
	if entries := body["audit"].([]any); len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
}

func TestThemeEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	code, hostToken := createSession(t, server)
	base := server.URL + "/api/session/" + code

	resp, body := doJSON(t, http.MethodPost, base+"/theme", hostToken, map[string]any{"themeId": "halloween"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set theme: status %d", resp.StatusCode)
	}
	theme := body["theme"].(map[string]any)
	if theme["themeId"] != "halloween" {
		t.Fatalf("unexpected theme: %+v", theme)
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/theme", hostToken, map[string]any{"themeId": "brutalist"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown theme id: expected 400, got %d", resp.StatusCode)
	}

	// No generator configured: drafting is a 502.
	resp, _ = doJSON(t, http.MethodPost, base+"/theme/draft", hostToken, map[string]any{"vibe": "midnight"})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("draft without generator: expected 502, got %d", resp.StatusCode)
	}

	// The theme rides along in the state snapshot.
	_, body = doJSON(t, http.MethodGet, base+"/state", hostToken, nil)
	state := body["state"].(map[string]any)
	if state["theme"] == nil {
		t.Fatalf("theme missing from snapshot")
	}
}
