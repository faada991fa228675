package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTranscriberOutput(t *testing.T) {
	tests := []struct {
		name     string
		stdout   string
		wantText string
		wantErr  string
	}{
		{
			name:     "clean JSON",
			stdout:   `{"text": "hello world", "segments": []}`,
			wantText: "hello world",
		},
		{
			name:     "JSON surrounded by log noise",
			stdout:   "Loading model...\nprogress 50%\n{\"text\": \"hi\", \"segments\": []}\ntrailing noise",
			wantText: "hi",
		},
		{
			name:    "engine-reported error",
			stdout:  `{"error": "cuda out of memory"}`,
			wantErr: "cuda out of memory",
		},
		{
			name:    "no JSON at all",
			stdout:  "crashed before output",
			wantErr: "no JSON object",
		},
		{
			name:    "malformed JSON",
			stdout:  `{"text": "unterminated`,
			wantErr: "no JSON object",
		},
		{
			name:    "broken JSON between braces",
			stdout:  `{"text": }`,
			wantErr: "malformed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transcript, err := parseTranscriberOutput([]byte(tt.stdout))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, transcript.Text)
		})
	}
}

func TestTranscribeRunsCommand(t *testing.T) {
	tr := NewTranscriber(TranscriberConfig{
		Command: []string{"sh", "-c",
			`echo "[engine] loading" >&2; echo '{"text":"hello world","segments":[{"start":0,"end":1.5,"text":"hello world","speaker":"SPEAKER_00"}]}'`},
	})

	transcript, err := tr.Transcribe(context.Background(), "/tmp/audio.mp3")
	require.NoError(t, err)
	assert.Equal(t, "hello world", transcript.Text)
	require.Len(t, transcript.Segments, 1)
	assert.Equal(t, "SPEAKER_00", transcript.Segments[0].Speaker)
	assert.Equal(t, 1.5, transcript.Segments[0].End)
}

func TestTranscribeToleratesNonzeroExitWithJSON(t *testing.T) {
	tr := NewTranscriber(TranscriberConfig{
		Command: []string{"sh", "-c", `echo '{"text":"partial","segments":[]}'; exit 3`},
	})

	transcript, err := tr.Transcribe(context.Background(), "/tmp/audio.mp3")
	require.NoError(t, err)
	assert.Equal(t, "partial", transcript.Text)
}

func TestTranscribeFailureCarriesStderr(t *testing.T) {
	tr := NewTranscriber(TranscriberConfig{
		Command: []string{"sh", "-c", `echo "model load failed" >&2; exit 1`},
	})

	_, err := tr.Transcribe(context.Background(), "/tmp/audio.mp3")
	var terr *TranscriberError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 1, terr.ExitCode)
	assert.Contains(t, terr.Stderr, "model load failed")
}

func TestTranscribeMockFallbacks(t *testing.T) {
	t.Run("no command configured", func(t *testing.T) {
		tr := NewTranscriber(TranscriberConfig{})
		transcript, err := tr.Transcribe(context.Background(), "/tmp/audio.mp3")
		require.NoError(t, err)
		assert.Contains(t, transcript.Text, "mock")
	})

	t.Run("binary missing", func(t *testing.T) {
		tr := NewTranscriber(TranscriberConfig{Command: []string{"/nonexistent/transcriber"}})
		transcript, err := tr.Transcribe(context.Background(), "/tmp/audio.mp3")
		require.NoError(t, err)
		assert.Contains(t, transcript.Text, "mock")
	})
}

func TestTranscribePassesModelEnv(t *testing.T) {
	tr := NewTranscriber(TranscriberConfig{
		Command: []string{"sh", "-c", `echo "{\"text\": \"$WHISPER_MODEL\", \"segments\": []}"`},
		Model:   "large-v3",
	})

	transcript, err := tr.Transcribe(context.Background(), "/tmp/audio.mp3")
	require.NoError(t, err)
	assert.Equal(t, "large-v3", transcript.Text)
}

func TestExtractSpeakerName(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"My name is John Doe, hello.", "John Doe"},
		{"My name is Jane and my id is 123.", "Jane 123"},
		{"Hello my name is Bob.", "Bob"},
		{"My name is Alice and my id is A01!", "Alice A01"},
		{"Let's get started with the agenda.", ""},
		{"My name is X.", ""}, // too short to be plausible
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractSpeakerName(tt.text), tt.text)
	}
}

func TestApplySpeakerNames(t *testing.T) {
	transcript := &Transcript{
		Text: "Hi my name is Bob. Hello everyone. Thanks Bob.",
		Segments: []Segment{
			{Text: "Hi my name is Bob.", Speaker: "SPEAKER_00"},
			{Text: "Hello everyone.", Speaker: "SPEAKER_01"},
			{Text: "Thanks Bob.", Speaker: "SPEAKER_00"},
		},
	}

	applySpeakerNames(transcript)

	assert.Equal(t, "Bob", transcript.Segments[0].Speaker)
	assert.Equal(t, "SPEAKER_01", transcript.Segments[1].Speaker, "unidentified speaker keeps its label")
	assert.Equal(t, "Bob", transcript.Segments[2].Speaker, "every segment of the speaker is renamed")
}

func TestApplySpeakerNamesFirstIntroductionWins(t *testing.T) {
	transcript := &Transcript{
		Segments: []Segment{
			{Text: "My name is Carol.", Speaker: "SPEAKER_00"},
			{Text: "Actually my name is Carla.", Speaker: "SPEAKER_00"},
		},
	}

	applySpeakerNames(transcript)

	assert.Equal(t, "Carol", transcript.Segments[0].Speaker)
	assert.Equal(t, "Carol", transcript.Segments[1].Speaker)
}
