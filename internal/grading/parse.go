package grading

import (
	"errors"
	"fmt"
	"strings"

	"inpeak-backend/internal/apperr"
	"inpeak-backend/internal/models"
)

// ErrMalformedResponse marks a reply that does not follow the
// transcript@VERDICT@feedback contract.
var ErrMalformedResponse = errors.New("malformed grading response")

const delimiter = "@"

type Result struct {
	Transcript string
	Verdict    models.AnswerStatus
	Feedback   string
}

// ParseResult splits content on '@' into exactly three segments. Anything else,
// including an unknown verdict token, is rejected rather than truncated.
func ParseResult(content string) (*Result, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Grading(ErrMalformedResponse, "empty grading response")
	}

	parts := strings.Split(content, delimiter)
	if len(parts) != 3 {
		return nil, apperr.Grading(ErrMalformedResponse, "expected 3 segments, got %d", len(parts))
	}

	verdict := models.AnswerStatus(strings.ToUpper(strings.TrimSpace(parts[1])))
	switch verdict {
	case models.AnswerStatusCorrect, models.AnswerStatusIncorrect:
	default:
		return nil, apperr.Grading(ErrMalformedResponse, "unknown verdict %q", strings.TrimSpace(parts[1]))
	}

	return &Result{
		Transcript: strings.TrimSpace(parts[0]),
		Verdict:    verdict,
		Feedback:   strings.TrimSpace(parts[2]),
	}, nil
}

func (r *Result) String() string {
	return fmt.Sprintf("%s%s%s%s%s", r.Transcript, delimiter, r.Verdict, delimiter, r.Feedback)
}
