package web

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/anastasiarods/moxie-alerts-bot/internal/logger"
)

// mockLogger implements logger.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, fields ...logger.Field) {}
func (m *mockLogger) Info(msg string, fields ...logger.Field)  {}
func (m *mockLogger) Warn(msg string, fields ...logger.Field)  {}
func (m *mockLogger) Error(msg string, fields ...logger.Field) {}
func (m *mockLogger) Fatal(msg string, fields ...logger.Field) {}
func (m *mockLogger) With(fields ...logger.Field) logger.Logger {
	return m
}

func TestLivenessRoot(t *testing.T) {
	s := NewServer(Config{Port: 3000}, nil, &mockLogger{})

	resp, err := s.app.Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Moxie Alerts Bot is running!" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestHealthIncludesStatus(t *testing.T) {
	status := func() map[string]interface{} {
		return map[string]interface{}{"subscription": "subscribed"}
	}
	s := NewServer(Config{Port: 3000}, status, &mockLogger{})

	resp, err := s.app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	var parsed map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if parsed["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", parsed["status"])
	}
	if parsed["subscription"] != "subscribed" {
		t.Errorf("expected subscription state in health response, got %v", parsed["subscription"])
	}
}
