package domain

// Status is the lifecycle phase of a session. Transitions only move
// forward: lobby -> playing -> revealed.
type Status string

const (
	StatusLobby    Status = "lobby"
	StatusPlaying  Status = "playing"
	StatusRevealed Status = "revealed"
)

// Role identifies what kind of client is behind a connection.
type Role string

const (
	RoleHost     Role = "host"
	RolePlayer   Role = "player"
	RoleObserver Role = "observer"
)

// Question models an MCQ question with a single canonical correct option.
// Immutable once the session leaves the lobby, except for append-only
// extension while playing.
type Question struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Correct     int      `json:"correct"` // zero-based; -1 when hidden from clients
	Explanation string   `json:"explanation,omitempty"`
	Points      int      `json:"points"`
}

// PointValue returns the points awarded for this question, defaulting to 1.
func (q Question) PointValue() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// Player is a participant in a session. Answers and AnswerTimes are keyed
// by question index; a player records at most one answer per index.
type Player struct {
	ID          string          `json:"id"`
	Nickname    string          `json:"nickname"`
	Score       int             `json:"score"`
	Answers     map[int]int     `json:"answers"`
	AnswerTimes map[int]float64 `json:"answerTimes"` // seconds to answer
}

// GameSettings holds the host-tunable timing and auto-progress knobs.
type GameSettings struct {
	TimerMode           bool `json:"timerMode"`
	TimerSeconds        int  `json:"timerSeconds"`
	AutoProgressMode    bool `json:"autoProgressMode"`
	AutoProgressPercent int  `json:"autoProgressPercent"`
}

// SessionState is the client-facing snapshot of a session. While playing,
// correct indices are masked and explanations stripped.
type SessionState struct {
	Code                 string       `json:"code"`
	Status               Status       `json:"status"`
	CurrentQuestionIndex int          `json:"currentQuestionIndex"`
	Players              []Player     `json:"players"`
	Questions            []Question   `json:"questions"`
	Settings             GameSettings `json:"settings"`
	TimerRemaining       *int         `json:"timerRemaining,omitempty"`
	Theme                any          `json:"theme,omitempty"`
}

// PlayerResult is one row of the final standings.
type PlayerResult struct {
	ID        string  `json:"id"`
	Nickname  string  `json:"nickname"`
	Score     int     `json:"score"`
	Rank      int     `json:"rank"`
	TotalTime float64 `json:"totalTime"`
}

// QuestionResult is the per-question slice of reveal results. YourAnswer and
// AnsweredCorrectly are set only on personalized results; Resolution and
// Verification carry dispute outcomes subject to their published flags.
type QuestionResult struct {
	Question          string                `json:"question"`
	Options           []string              `json:"options"`
	Correct           int                   `json:"correct"`
	Explanation       string                `json:"explanation,omitempty"`
	Points            int                   `json:"points"`
	YourAnswer        *int                  `json:"yourAnswer,omitempty"`
	AnsweredCorrectly *bool                 `json:"answeredCorrectly,omitempty"`
	Resolution        *ChallengeResolution  `json:"resolution,omitempty"`
	Verification      *AIVerification       `json:"verification,omitempty"`
	Policy            *ReconciliationPolicy `json:"policy,omitempty"`
}

// RevealResults is the full end-of-round disclosure.
type RevealResults struct {
	Players   []PlayerResult   `json:"players"`
	Questions []QuestionResult `json:"questions"`
}

// LeaderboardEntry is one row of the live standings, computed with the same
// per-question scoring rule as the reveal so the two views cannot diverge.
type LeaderboardEntry struct {
	ID             string `json:"id"`
	Nickname       string `json:"nickname"`
	Score          int    `json:"score"`
	Rank           int    `json:"rank"`
	CorrectAnswers int    `json:"correctAnswers"`
	TotalAnswers   int    `json:"totalAnswers"`
}

// QuestionStats is the answer distribution for one question.
type QuestionStats struct {
	QuestionIndex int   `json:"questionIndex"`
	TotalPlayers  int   `json:"totalPlayers"`
	AnsweredCount int   `json:"answeredCount"`
	Distribution  []int `json:"distribution"`
}

// AnswerStatus lists who has and has not answered a question.
type AnswerStatus struct {
	Answered []string `json:"answered"`
	Waiting  []string `json:"waiting"`
}
