package exam

import "strconv"

const (
	QuestionTypeMultipleChoice = "multiple_choice"
	QuestionTypeEssay          = "essay"
)

type ScoreInput struct {
	QuestionType    string
	Points          int
	Answer          string
	CorrectOptionID *int64
}

// ScoreResult carries the auto-scoring verdict for one response. Both
// fields stay nil for essays: the score is decided later by a grader.
type ScoreResult struct {
	Score   *float64
	Correct *bool
}

// ScoreResponse applies the auto-scoring rule at submission time. A
// multiple-choice answer is the selected option id in decimal; it earns the
// question's full points when it matches the correct option and zero
// otherwise. A question with no correct option scores zero rather than
// failing the submission.
func ScoreResponse(in ScoreInput) ScoreResult {
	if in.QuestionType != QuestionTypeMultipleChoice {
		return ScoreResult{}
	}

	correct := false
	if in.CorrectOptionID != nil {
		if selected, err := strconv.ParseInt(in.Answer, 10, 64); err == nil {
			correct = selected == *in.CorrectOptionID
		}
	}

	score := 0.0
	if correct {
		score = float64(in.Points)
	}
	return ScoreResult{Score: &score, Correct: &correct}
}
