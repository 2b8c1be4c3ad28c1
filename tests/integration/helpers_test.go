//go:build integration
// +build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"
)

type answer struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

type submission struct {
	Question    string   `json:"question"`
	Answers     []answer `json:"answers"`
	Category    string   `json:"category,omitempty"`
	NewCategory string   `json:"newCategory,omitempty"`
}

type presented struct {
	Question      string   `json:"question"`
	Answers       []string `json:"answers"`
	CorrectAnswer string   `json:"correctAnswer"`
	Category      string   `json:"category"`
}

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// uniqueCategory keeps test runs from seeing each other's questions.
func uniqueCategory(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func mathSubmission(category string) submission {
	return submission{
		Question: "2+2?",
		Answers: []answer{
			{Text: "1"}, {Text: "3"}, {Text: "4", IsCorrect: true}, {Text: "5"},
		},
		NewCategory: category,
	}
}

func postSubmission(t *testing.T, baseURL string, payload interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal submission: %v", err)
	}
	resp, err := http.Post(fmt.Sprintf("%s/submit", baseURL), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("submit request failed: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode submit response failed: %v", err)
	}
	return resp, out
}

func getQuestions(t *testing.T, baseURL, category string, count int) (int, []presented) {
	t.Helper()

	u := fmt.Sprintf("%s/question/%s?count=%d", baseURL, url.PathEscape(category), count)
	resp, err := http.Get(u)
	if err != nil {
		t.Fatalf("question request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	var out []presented
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode questions failed: %v", err)
	}
	return resp.StatusCode, out
}

// waitForQuestions polls until the ETL consumer has persisted at least want questions.
func waitForQuestions(t *testing.T, baseURL, category string, want int, timeout time.Duration) []presented {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status, got := getQuestions(t, baseURL, category, want)
		if status == http.StatusOK && len(got) >= want {
			return got
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("questions for %q not persisted within %s", category, timeout)
	return nil
}
