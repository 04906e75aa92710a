package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pulsequiz/internal/domain"
)

const draftSystem = "You are a quiz author. Reply with JSON only, no prose."

// DraftQuestions asks the collaborator for a batch of multiple-choice
// questions on a topic and validates the result.
func DraftQuestions(ctx context.Context, g Generator, topic string, count int) ([]domain.Question, error) {
	if count <= 0 {
		count = 5
	}
	prompt := fmt.Sprintf(
		`Write %d multiple-choice trivia questions about %q. Respond with a JSON array where each element has: "question" (string), "options" (array of 4 strings), "correct" (zero-based index of the right option), "explanation" (one short sentence), "points" (integer, usually 1).`,
		count, topic,
	)

	resp, err := g.Generate(ctx, Request{Prompt: prompt, System: draftSystem})
	if err != nil {
		return nil, err
	}

	var questions []domain.Question
	if err := json.Unmarshal([]byte(ExtractJSON(resp.Text)), &questions); err != nil {
		return nil, fmt.Errorf("%w: unparseable question batch: %v", ErrUnavailable, err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: empty question batch", ErrUnavailable)
	}
	for i, q := range questions {
		if strings.TrimSpace(q.Question) == "" || len(q.Options) < 2 || q.Correct < 0 || q.Correct >= len(q.Options) {
			return nil, fmt.Errorf("%w: invalid question at index %d", ErrUnavailable, i)
		}
		if questions[i].Points <= 0 {
			questions[i].Points = 1
		}
	}
	return questions, nil
}

const verifySystem = "You are a trivia fact-checker. Reply with JSON only, no prose."

// VerifyInput is the structured request for a verification opinion.
type VerifyInput struct {
	Question       domain.Question
	ChallengeNotes []string
}

// Verdict is the collaborator's opinion on a disputed question.
type Verdict struct {
	Verdict          string  `json:"verdict"`
	Confidence       float64 `json:"confidence"`
	Rationale        string  `json:"rationale"`
	SuggestedCorrect *int    `json:"suggestedCorrect"`
}

// VerifyAnswer asks the collaborator whether a question's marked answer
// holds up against the players' objections.
func VerifyAnswer(ctx context.Context, g Generator, input VerifyInput) (Verdict, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n", input.Question.Question)
	for i, opt := range input.Question.Options {
		fmt.Fprintf(&sb, "Option %d: %s\n", i, opt)
	}
	fmt.Fprintf(&sb, "Marked correct: option %d\n", input.Question.Correct)
	if len(input.ChallengeNotes) > 0 {
		sb.WriteString("Player objections:\n")
		for _, note := range input.ChallengeNotes {
			fmt.Fprintf(&sb, "- %s\n", note)
		}
	}
	sb.WriteString(`Is the marked answer correct? Respond with a JSON object: "verdict" ("valid", "invalid" or "ambiguous"), "confidence" (0 to 1), "rationale" (one or two sentences), "suggestedCorrect" (zero-based index of the actually correct option, or null).`)

	resp, err := g.Generate(ctx, Request{Prompt: sb.String(), System: verifySystem})
	if err != nil {
		return Verdict{}, err
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(ExtractJSON(resp.Text)), &verdict); err != nil {
		return Verdict{}, fmt.Errorf("%w: unparseable verdict: %v", ErrUnavailable, err)
	}
	switch verdict.Verdict {
	case "valid", "invalid", "ambiguous":
	default:
		return Verdict{}, fmt.Errorf("%w: unexpected verdict %q", ErrUnavailable, verdict.Verdict)
	}
	if verdict.SuggestedCorrect != nil {
		if idx := *verdict.SuggestedCorrect; idx < 0 || idx >= len(input.Question.Options) {
			verdict.SuggestedCorrect = nil
		}
	}
	return verdict, nil
}
