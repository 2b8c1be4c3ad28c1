package question

import (
	"fmt"
	"strings"
)

// ValidateSubmission checks a client submission and normalizes it into a Question.
// Rules run in a fixed order and the first failure is returned as a *ValidationError.
func ValidateSubmission(req SubmissionRequest) (Question, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Question{}, &ValidationError{
			Reason:  ReasonMissingQuestionText,
			Field:   "question",
			Message: "question text is required",
		}
	}

	if len(req.Answers) != AnswerCount {
		return Question{}, &ValidationError{
			Reason:  ReasonAnswerCountInvalid,
			Field:   "answers",
			Message: fmt.Sprintf("exactly %d answers must be provided, got %d", AnswerCount, len(req.Answers)),
		}
	}

	category := resolveCategory(req.Category, req.NewCategory)
	if category == "" {
		return Question{}, &ValidationError{
			Reason:  ReasonMissingCategory,
			Field:   "category",
			Message: "category or newCategory is required",
		}
	}

	if n := countCorrect(req.Answers); n != 1 {
		return Question{}, &ValidationError{
			Reason:  ReasonCorrectAnswerCountInvalid,
			Field:   "answers",
			Message: fmt.Sprintf("exactly one correct answer is required, got %d", n),
		}
	}

	answers := make([]Answer, len(req.Answers))
	for i, a := range req.Answers {
		answerText := strings.TrimSpace(a.Text)
		if answerText == "" {
			return Question{}, &ValidationError{
				Reason:  ReasonMissingAnswerText,
				Field:   fmt.Sprintf("answers[%d].text", i),
				Message: "answer text is required",
			}
		}
		answers[i] = Answer{Text: answerText, IsCorrect: a.IsCorrect}
	}

	return Question{
		Text:     text,
		Answers:  answers,
		Category: category,
	}, nil
}

// ValidateQuestion re-checks an already normalized question, as read off the queue.
func ValidateQuestion(q Question) error {
	_, err := ValidateSubmission(SubmissionRequest{
		Text:     q.Text,
		Answers:  q.Answers,
		Category: q.Category,
	})
	return err
}

// resolveCategory lets a non-blank newCategory win over category.
func resolveCategory(category, newCategory string) string {
	if nc := strings.TrimSpace(newCategory); nc != "" {
		return nc
	}
	return strings.TrimSpace(category)
}

func countCorrect(answers []Answer) int {
	n := 0
	for _, a := range answers {
		if a.IsCorrect {
			n++
		}
	}
	return n
}
