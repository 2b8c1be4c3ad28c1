//go:build integration
// +build integration

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	wsmsg "github.com/gokatarajesh/trivia-pipeline/pkg/http/ws"
)

func dialFeed(t *testing.T, baseURL, category string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws/questions?category=" + url.QueryEscape(category)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		if resp != nil {
			t.Fatalf("dial feed failed: %v (status %d)", err, resp.StatusCode)
		}
		t.Fatalf("dial feed failed: %v", err)
	}

	var welcome wsmsg.Message
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read welcome failed: %v", err)
	}
	if welcome.Type != wsmsg.TypeWelcome {
		t.Fatalf("expected welcome, got %s", welcome.Type)
	}
	return conn
}

func TestFeedAnnouncesStoredQuestion(t *testing.T) {
	baseURL := envOrDefault("INTEGRATION_BASE_URL", "http://localhost:8080")
	category := uniqueCategory("feed")

	conn := dialFeed(t, baseURL, category)
	defer conn.Close()

	resp, body := postSubmission(t, baseURL, mathSubmission(category))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %v", resp.StatusCode, body)
	}

	conn.SetReadDeadline(time.Now().Add(15 * time.Second))
	for {
		var msg wsmsg.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read feed message failed: %v", err)
		}
		if msg.Type != wsmsg.TypeQuestionAdded {
			continue
		}

		var payload wsmsg.QuestionAddedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			t.Fatalf("decode payload failed: %v", err)
		}
		if payload.Category != category {
			t.Fatalf("received event for foreign category %q", payload.Category)
		}
		if payload.Question != "2+2?" {
			t.Fatalf("unexpected question %q", payload.Question)
		}
		return
	}
}

func TestFeedPingPong(t *testing.T) {
	baseURL := envOrDefault("INTEGRATION_BASE_URL", "http://localhost:8080")

	conn := dialFeed(t, baseURL, "")
	defer conn.Close()

	ping := wsmsg.Message{Type: wsmsg.TypePing, RequestID: fmt.Sprintf("req-%d", time.Now().UnixNano())}
	if err := conn.WriteJSON(ping); err != nil {
		t.Fatalf("write ping failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var pong wsmsg.Message
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong failed: %v", err)
	}
	if pong.Type != wsmsg.TypePong || pong.RequestID != ping.RequestID {
		t.Fatalf("unexpected reply %+v", pong)
	}
}
