// Package botclient wraps the external meeting-bot provider's HTTP API.
// It covers four calls: dispatching a bot into a meeting, polling bot
// status, downloading the recorded audio and asking the bot to leave.
// The client never sees the vault or any encryption key; it hands raw
// provider bytes to the orchestrator.
package botclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alfredjoe/Talktrace-backend/internal/logger"
)

// terminalStates are raw provider states after which no further progress
// is possible.
var terminalStates = map[string]bool{
	"done":             true,
	"fatal":            true,
	"error":            true,
	"payment_required": true,
}

// mediaPriority orders the provider's media shortcut keys from most to
// least preferred. The first key that yields a download URL wins.
var mediaPriority = []string{
	"raw_audio",   // lossless
	"mp3",         // already the target codec
	"audio_mixed", // mixed-down meeting audio
	"video_mixed", // last resort, audio track extracted downstream
}

// ProviderError is a non-2xx answer from the bot provider. The body is
// retained (truncated) for diagnostics.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("bot provider returned %d: %s", e.StatusCode, e.Body)
}

// BotStatus is the normalized view of the provider's heterogeneous
// status surface.
type BotStatus struct {
	// RawStatus is the provider's own state name, e.g. "in_call_recording"
	// or "done".
	RawStatus string
	// AudioReady reports that at least one media shortcut resolved to a
	// download URL.
	AudioReady bool
	// AudioURL is the selected download URL, empty when AudioReady is false.
	AudioURL string
}

// Terminal reports whether the provider will make no further progress.
func (s BotStatus) Terminal() bool {
	return terminalStates[s.RawStatus]
}

// Config configures the provider client.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds join/status/leave calls. Downloads use their own
	// request context instead.
	Timeout time.Duration
}

// Client talks to the bot provider. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	// downloader has no client-side timeout: recordings can be large and
	// the caller's context bounds the transfer.
	downloader *http.Client
}

// New builds a provider client from config.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("bot provider base URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		downloader: &http.Client{},
	}, nil
}

type joinRequest struct {
	MeetingURL string `json:"meeting_url"`
	BotName    string `json:"bot_name"`
}

type joinResponse struct {
	ID string `json:"id"`
}

// Join dispatches a bot into the meeting and returns the provider's bot id.
func (c *Client) Join(ctx context.Context, meetingURL, botName string) (string, error) {
	if botName == "" {
		botName = "Talktrace Bot"
	}
	body, err := json.Marshal(joinRequest{MeetingURL: meetingURL, BotName: botName})
	if err != nil {
		return "", err
	}

	var resp joinResponse
	if err := c.doJSON(ctx, http.MethodPost, "/bot", bytes.NewReader(body), &resp); err != nil {
		return "", fmt.Errorf("failed to dispatch bot: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("provider returned empty bot id")
	}
	logger.Info("bot dispatched", logger.KeyBotID, resp.ID)
	return resp.ID, nil
}

// statusResponse mirrors the subset of the provider's bot object we
// consume. The provider reports state either as a top-level status or,
// on older API versions, only as an append-only status_changes log.
type statusResponse struct {
	Status        *statusEntry   `json:"status"`
	StatusChanges []statusEntry  `json:"status_changes"`
	Media         mediaShortcuts `json:"media_shortcuts"`
}

type statusEntry struct {
	Code string `json:"code"`
}

type mediaShortcuts map[string]struct {
	Data struct {
		DownloadURL string `json:"download_url"`
	} `json:"data"`
}

// Status polls the bot and normalizes the result: explicit status field
// when present, otherwise the last status_changes entry, plus the best
// available media download URL.
func (c *Client) Status(ctx context.Context, botID string) (BotStatus, error) {
	var resp statusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/bot/"+botID, nil, &resp); err != nil {
		return BotStatus{}, fmt.Errorf("failed to poll bot status: %w", err)
	}

	var raw string
	switch {
	case resp.Status != nil && resp.Status.Code != "":
		raw = resp.Status.Code
	case len(resp.StatusChanges) > 0:
		raw = resp.StatusChanges[len(resp.StatusChanges)-1].Code
	default:
		raw = "unknown"
	}

	status := BotStatus{RawStatus: raw}
	for _, key := range mediaPriority {
		if shortcut, ok := resp.Media[key]; ok && shortcut.Data.DownloadURL != "" {
			status.AudioReady = true
			status.AudioURL = shortcut.Data.DownloadURL
			break
		}
	}
	return status, nil
}

// DownloadAudio opens a streaming download of the recording at the URL
// previously selected by Status. The caller must close the reader.
func (c *Client) DownloadAudio(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	// Recording URLs are pre-signed; the API key is not sent along.

	resp, err := c.downloader.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download recording: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, readProviderError(resp)
	}
	return resp.Body, nil
}

// Leave asks the bot to leave the call. A 404 is treated as success:
// the bot is already gone.
func (c *Client) Leave(ctx context.Context, botID string) error {
	err := c.doJSON(ctx, http.MethodPost, "/bot/"+botID+"/leave_call", nil, nil)
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) && perr.StatusCode == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("failed to remove bot: %w", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readProviderError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}
	return nil
}

const maxErrorBody = 2048

func readProviderError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &ProviderError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
}
