package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alfredjoe/Talktrace-backend/internal/logger"
)

// SummarizerConfig configures the LLM summarizer.
type SummarizerConfig struct {
	// APIKey enables the real engine. Empty key means mock summaries.
	APIKey string
	// BaseURL overrides the API endpoint, e.g. for a local inference
	// server with an OpenAI-compatible surface.
	BaseURL string
	// Model defaults to gpt-4o-mini.
	Model string
	// Timeout bounds one summarization request. Zero means 120 seconds.
	Timeout time.Duration
}

// Summarizer produces a short summary plus action items from transcript
// text. It degrades to a mock on any engine failure so the pipeline
// never stalls on the summarization step.
type Summarizer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// maxSummaryInput caps the transcript text sent to the model.
const maxSummaryInput = 4000

const summaryPrompt = `You are a meeting assistant. Summarize the following meeting transcript.
Respond with a JSON object of the form {"summary": "<one concise paragraph>", "actions": ["<action item>", ...]}.
The actions list may be empty. Do not include any other keys.

Transcript:
`

// NewSummarizer builds a summarizer from config. A nil client (no API
// key) is valid and selects the mock path.
func NewSummarizer(cfg SummarizerConfig) *Summarizer {
	s := &Summarizer{
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
	if s.model == "" {
		s.model = openai.GPT4oMini
	}
	if s.timeout == 0 {
		s.timeout = 120 * time.Second
	}
	if cfg.APIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		s.client = openai.NewClientWithConfig(clientCfg)
	}
	return s
}

// Summarize returns a summary of the transcript text. Engine failures
// (absent config, timeout, malformed model output) are logged and
// answered with a mock so callers always get a usable summary.
func (s *Summarizer) Summarize(ctx context.Context, text string) *Summary {
	if s.client == nil {
		logger.Warn("summarizer not configured, using mock output",
			logger.KeyMock, true, logger.KeyEngine, "summarizer")
		return mockSummary()
	}

	summary, err := s.summarizeLLM(ctx, text)
	if err != nil {
		logger.Warn("summarization failed, using mock output",
			logger.KeyMock, true, logger.KeyEngine, "summarizer",
			logger.KeyError, err)
		return mockSummary()
	}
	return summary
}

func (s *Summarizer) summarizeLLM(ctx context.Context, text string) (*Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if len(text) > maxSummaryInput {
		text = text[:maxSummaryInput]
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: summaryPrompt + text},
		},
	})
	if err != nil {
		return nil, &SummarizerError{Reason: "chat completion request failed", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &SummarizerError{Reason: "empty completion"}
	}

	summary, err := parseSummaryJSON(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// parseSummaryJSON decodes the model's JSON answer, tolerating prose or
// code fences around the object.
func parseSummaryJSON(content string) (*Summary, error) {
	first := strings.IndexByte(content, '{')
	last := strings.LastIndexByte(content, '}')
	if first == -1 || last <= first {
		return nil, &SummarizerError{Reason: "no JSON object in completion"}
	}

	var summary Summary
	if err := json.Unmarshal([]byte(content[first:last+1]), &summary); err != nil {
		return nil, &SummarizerError{Reason: fmt.Sprintf("malformed completion JSON: %v", err), Err: err}
	}
	if summary.Summary == "" {
		return nil, &SummarizerError{Reason: "completion missing summary field"}
	}
	if summary.Actions == nil {
		summary.Actions = []string{}
	}
	return &summary, nil
}

func mockSummary() *Summary {
	return &Summary{
		Summary: "This is a mock summary. Configure the summarization engine to generate real summaries.",
		Actions: []string{},
	}
}
