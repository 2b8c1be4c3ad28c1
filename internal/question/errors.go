package question

import (
	"errors"
	"fmt"
)

// Validation reason codes, in the order the validator checks them.
const (
	ReasonMissingQuestionText       = "MISSING_QUESTION_TEXT"
	ReasonAnswerCountInvalid        = "ANSWER_COUNT_INVALID"
	ReasonMissingCategory           = "MISSING_CATEGORY"
	ReasonCorrectAnswerCountInvalid = "CORRECT_ANSWER_COUNT_INVALID"
	ReasonMissingAnswerText         = "MISSING_ANSWER_TEXT"
)

var (
	ErrBrokerUnavailable = errors.New("broker unavailable")
	ErrBrokerPublish     = errors.New("broker publish failed")
	ErrPublishTimeout    = errors.New("broker publish timed out")
	ErrPoisonMessage     = errors.New("poison message")
	ErrPersistence       = errors.New("persistence failure")
	ErrCategoryNotFound  = errors.New("category not found")
)

// ValidationError rejects a submission before it reaches the queue.
type ValidationError struct {
	Reason  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// ReasonOf extracts the validation reason code from err, or "" when err is not a validation failure.
func ReasonOf(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return ""
}
