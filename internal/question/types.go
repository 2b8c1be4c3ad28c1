package question

import (
	"time"

	"github.com/google/uuid"
)

// AnswerCount is the fixed size of every answer set.
const AnswerCount = 4

// Answer is one entry of a question's answer set.
type Answer struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Question is the normalized, validated question that travels through the queue.
// Its JSON form is the queue message body.
type Question struct {
	Text     string   `json:"question"`
	Answers  []Answer `json:"answers"`
	Category string   `json:"category"`
}

// StoredQuestion is a Question as persisted by the gateway.
type StoredQuestion struct {
	ID        uuid.UUID
	Question  Question
	CreatedAt time.Time
}

// SubmissionRequest is the client-supplied POST /submit body.
type SubmissionRequest struct {
	Text        string   `json:"question"`
	Answers     []Answer `json:"answers"`
	Category    string   `json:"category,omitempty"`
	NewCategory string   `json:"newCategory,omitempty"`
}

// PresentedQuestion is what retrieval clients receive. Correctness flags are
// reduced to the single CorrectAnswer text.
type PresentedQuestion struct {
	Text          string   `json:"question"`
	Answers       []string `json:"answers"`
	CorrectAnswer string   `json:"correctAnswer"`
	Category      string   `json:"category"`
}

// SubmissionReceipt is returned once the broker confirms the publish.
type SubmissionReceipt struct {
	SubmissionID string
	Category     string
}

// CorrectAnswer returns the text of the flagged answer and whether exactly one was flagged.
func (q Question) CorrectAnswer() (string, bool) {
	var (
		text  string
		count int
	)
	for _, a := range q.Answers {
		if a.IsCorrect {
			text = a.Text
			count++
		}
	}
	return text, count == 1
}
