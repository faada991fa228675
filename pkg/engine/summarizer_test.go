package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeMockWithoutAPIKey(t *testing.T) {
	s := NewSummarizer(SummarizerConfig{})
	summary := s.Summarize(context.Background(), "some transcript")
	assert.Contains(t, summary.Summary, "mock")
	assert.NotNil(t, summary.Actions)
}

func TestParseSummaryJSON(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantSummary string
		wantActions []string
		wantErr     bool
	}{
		{
			name:        "plain object",
			content:     `{"summary": "We discussed the launch.", "actions": ["Ship it"]}`,
			wantSummary: "We discussed the launch.",
			wantActions: []string{"Ship it"},
		},
		{
			name:        "code-fenced object",
			content:     "```json\n{\"summary\": \"Short sync.\", \"actions\": []}\n```",
			wantSummary: "Short sync.",
			wantActions: []string{},
		},
		{
			name:        "missing actions becomes empty list",
			content:     `{"summary": "Standup."}`,
			wantSummary: "Standup.",
			wantActions: []string{},
		},
		{name: "missing summary", content: `{"actions": ["x"]}`, wantErr: true},
		{name: "no JSON", content: "I could not summarize that.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := parseSummaryJSON(tt.content)
			if tt.wantErr {
				var serr *SummarizerError
				require.ErrorAs(t, err, &serr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSummary, summary.Summary)
			assert.Equal(t, tt.wantActions, summary.Actions)
		})
	}
}

func TestSummarizeAgainstServer(t *testing.T) {
	var receivedContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		receivedContent = req.Messages[0].Content

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"role":    "assistant",
					"content": `{"summary": "Quarterly planning.", "actions": ["Draft OKRs"]}`,
				}},
			},
		})
	}))
	defer srv.Close()

	s := NewSummarizer(SummarizerConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})
	summary := s.Summarize(context.Background(), "the transcript text")
	assert.Equal(t, "Quarterly planning.", summary.Summary)
	assert.Equal(t, []string{"Draft OKRs"}, summary.Actions)
	assert.Contains(t, receivedContent, "the transcript text")
}

func TestSummarizeTruncatesLongTranscripts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotContains(t, req.Messages[0].Content, "MARKER")

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `{"summary": "ok", "actions": []}`}},
			},
		})
	}))
	defer srv.Close()

	text := strings.Repeat("a", maxSummaryInput) + "MARKER"
	s := NewSummarizer(SummarizerConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})
	summary := s.Summarize(context.Background(), text)
	assert.Equal(t, "ok", summary.Summary)
}

func TestSummarizeFallsBackOnEngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewSummarizer(SummarizerConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})
	summary := s.Summarize(context.Background(), "text")
	assert.Contains(t, summary.Summary, "mock")
}
