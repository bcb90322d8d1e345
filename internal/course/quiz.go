package course

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidQuiz marks a quiz payload that failed shape validation.
var ErrInvalidQuiz = errors.New("invalid quiz data")

// Question is one entry of a quiz payload: the question text, exactly four
// options, and the 1-based index of the correct option.
type Question struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// ParseQuizData decodes and shape-checks a serialized quiz payload. The
// payload stays stored as the opaque string; this runs on write only.
func ParseQuizData(data string) ([]Question, error) {
	if strings.TrimSpace(data) == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidQuiz)
	}
	var questions []Question
	if err := json.Unmarshal([]byte(data), &questions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuiz, err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrInvalidQuiz)
	}
	for i, q := range questions {
		if strings.TrimSpace(q.Question) == "" {
			return nil, fmt.Errorf("%w: question %d has no text", ErrInvalidQuiz, i+1)
		}
		if len(q.Options) != 4 {
			return nil, fmt.Errorf("%w: question %d has %d options, want 4", ErrInvalidQuiz, i+1, len(q.Options))
		}
		answer, err := strconv.Atoi(strings.TrimSpace(q.CorrectAnswer))
		if err != nil || answer < 1 || answer > 4 {
			return nil, fmt.Errorf("%w: question %d correct answer must be 1-4", ErrInvalidQuiz, i+1)
		}
	}
	return questions, nil
}
