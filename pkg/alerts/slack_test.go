package alerts_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/alerts"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAlert() alerts.Alert {
	return alerts.Alert{
		RuleID:        "rule-1",
		ProjectID:     "proj-1",
		ProjectName:   "chatbot",
		ThresholdType: "daily",
		CurrentCost:   decimal.NewFromInt(150),
		Threshold:     decimal.NewFromInt(100),
		PercentOver:   decimal.NewFromInt(50),
		TriggeredAt:   time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC),
	}
}

func TestSlackNotifier_Name(t *testing.T) {
	n := alerts.NewSlackNotifier("https://hooks.slack.com/test", "#test")
	assert.Equal(t, "slack", n.Name())
}

func TestSlackNotifier_Send(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, http.MethodPost, r.Method)

		err := json.NewDecoder(r.Body).Decode(&received)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := alerts.NewSlackNotifier(server.URL, "#ai-spend")
	err := n.Send(context.Background(), sampleAlert())
	require.NoError(t, err)

	assert.Equal(t, "#ai-spend", received["channel"])
	assert.Equal(t, "chatbot daily spend $150.00 exceeded threshold $100.00 (50% over)", received["text"])

	attachments, ok := received["attachments"].([]any)
	require.True(t, ok)
	require.Len(t, attachments, 1)
	first := attachments[0].(map[string]any)
	assert.Equal(t, "#cc0000", first["color"])
	assert.Equal(t, float64(1762171200), first["ts"])
}

func TestSlackNotifier_Send_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := alerts.NewSlackNotifier(server.URL, "#test")
	err := n.Send(context.Background(), sampleAlert())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestPercentOver(t *testing.T) {
	tests := []struct {
		current, threshold, want string
	}{
		{"150", "100", "50"},
		{"100.01", "100", "0"},
		{"133.33", "100", "33.3"},
		{"25.50", "10", "155"},
		{"10", "0", "0"},
	}
	for _, tt := range tests {
		got := alerts.PercentOver(decimal.RequireFromString(tt.current), decimal.RequireFromString(tt.threshold))
		assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "%s over %s = %s", tt.current, tt.threshold, got)
	}
}
