package pipeline

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjoe/Talktrace-backend/pkg/botclient"
	"github.com/alfredjoe/Talktrace-backend/pkg/crypto"
	"github.com/alfredjoe/Talktrace-backend/pkg/engine"
	"github.com/alfredjoe/Talktrace-backend/pkg/store"
	"github.com/alfredjoe/Talktrace-backend/pkg/store/models"
	"github.com/alfredjoe/Talktrace-backend/pkg/vault"
)

type fakeBots struct {
	mu        sync.Mutex
	status    botclient.BotStatus
	statusErr error
	joinID    string
	joinErr   error
	payload   []byte
	downloads int32
	leaves    int32
}

func (f *fakeBots) Join(ctx context.Context, meetingURL, botName string) (string, error) {
	return f.joinID, f.joinErr
}

func (f *fakeBots) Status(ctx context.Context, botID string) (botclient.BotStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusErr
}

func (f *fakeBots) DownloadAudio(ctx context.Context, url string) (io.ReadCloser, error) {
	atomic.AddInt32(&f.downloads, 1)
	return io.NopCloser(bytes.NewReader(f.payload)), nil
}

func (f *fakeBots) Leave(ctx context.Context, botID string) error {
	atomic.AddInt32(&f.leaves, 1)
	return nil
}

type fakeTranscriber struct {
	transcript *engine.Transcript
	err        error
	calls      int32
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (*engine.Transcript, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.transcript, nil
}

type fakeSummarizer struct {
	summary *engine.Summary
}

func (f *fakeSummarizer) Summarize(ctx context.Context, text string) *engine.Summary {
	if f.summary != nil {
		return f.summary
	}
	return &engine.Summary{Summary: "summary of: " + text, Actions: []string{"follow up"}}
}

// fakeMedia passes audio through unchanged.
type fakeMedia struct {
	transcodeErr error
	probeSeconds int
	probeErr     error
}

func (f *fakeMedia) Transcode(ctx context.Context, in io.Reader) (io.ReadCloser, <-chan error, error) {
	errCh := make(chan error, 1)
	if f.transcodeErr != nil {
		errCh <- f.transcodeErr
	}
	close(errCh)
	return io.NopCloser(in), errCh, nil
}

func (f *fakeMedia) ProbeDuration(ctx context.Context, path string) (int, error) {
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	return f.probeSeconds, nil
}

type testEnv struct {
	orch        *Orchestrator
	store       *store.Store
	vault       *vault.Vault
	bots        *fakeBots
	transcriber *fakeTranscriber
	media       *fakeMedia
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	master := make([]byte, 32)
	_, err := rand.Read(master)
	require.NoError(t, err)

	st, err := store.New(store.Config{Path: ":memory:"}, master)
	require.NoError(t, err)
	vlt, err := vault.New(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		store: st,
		vault: vlt,
		bots:  &fakeBots{joinID: "bot-1", payload: []byte("provider audio bytes")},
		transcriber: &fakeTranscriber{transcript: &engine.Transcript{
			Text: "hello world this is the meeting",
			Segments: []engine.Segment{
				{Start: 0, End: 2, Text: "hello world this is the meeting", Speaker: "SPEAKER_00"},
			},
		}},
		media: &fakeMedia{probeSeconds: 95},
	}
	env.orch = New(st, vlt, env.bots, env.transcriber, &fakeSummarizer{}, env.media, Config{})
	return env
}

func (e *testEnv) createMeeting(t *testing.T, id string) {
	t.Helper()
	_, err := e.store.CreateMeeting(context.Background(), "user-1", id)
	require.NoError(t, err)
}

func TestJoinRegistersMeeting(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.orch.Join(context.Background(), "user-1", "https://meet.example/x", "Bot")
	require.NoError(t, err)
	assert.Equal(t, "bot-1", id)

	m, err := env.store.GetMeeting(context.Background(), "bot-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateInitializing, m.State())
}

func TestJoinPullsBotOutOnRegistrationFailure(t *testing.T) {
	env := newTestEnv(t)
	env.createMeeting(t, "bot-1") // forces a duplicate

	_, err := env.orch.Join(context.Background(), "user-1", "https://meet.example/x", "Bot")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDuplicateMeeting)
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.bots.leaves))
}

func TestIngestAndProcessEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.createMeeting(t, "bot-1")
	ctx := context.Background()

	require.NoError(t, env.orch.IngestRecording(ctx, "bot-1", bytes.NewReader([]byte("mp3 frames"))))
	env.orch.Wait()

	m, err := env.store.GetMeeting(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, m.State())
	assert.Equal(t, 95, m.DurationSeconds)
	assert.Equal(t, 1, m.ActiveVersion)

	paths := m.GetFilePaths()
	require.Len(t, paths, 3)

	// Audio round-trips through the vault.
	key, iv, err := env.store.GetMeetingKey(ctx, "bot-1")
	require.NoError(t, err)
	audio, err := env.vault.DecryptFileToBuffer(paths["audio"], key, iv)
	require.NoError(t, err)
	assert.Equal(t, "mp3 frames", string(audio))

	// Transcript head decodes to the engine output.
	blob, err := env.vault.DecryptFileToBuffer(paths["transcript"], key, iv)
	require.NoError(t, err)
	var transcript engine.Transcript
	require.NoError(t, json.Unmarshal(blob, &transcript))
	assert.Equal(t, "hello world this is the meeting", transcript.Text)

	// Both kinds got a v1 revision.
	for _, kind := range []models.ArtifactKind{models.KindTranscript, models.KindSummary} {
		revs, err := env.store.ListRevisions(ctx, "bot-1", kind)
		require.NoError(t, err)
		require.Len(t, revs, 1, string(kind))
		assert.Equal(t, 1, revs[0].Version)
		assert.True(t, env.vault.Exists(revs[0].FilePath))
	}
}

func TestIngestTranscodeFailure(t *testing.T) {
	env := newTestEnv(t)
	env.createMeeting(t, "bot-1")
	env.media.transcodeErr = errors.New("invalid input stream")

	err := env.orch.IngestRecording(context.Background(), "bot-1", bytes.NewReader([]byte("junk")))
	require.ErrorIs(t, err, ErrIngest)

	m, err := env.store.GetMeeting(context.Background(), "bot-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, m.State())
	assert.False(t, env.vault.Exists(env.vault.AudioPath("bot-1")), "partial audio blob is removed")
}

func TestProcessFailureMarksFailed(t *testing.T) {
	env := newTestEnv(t)
	env.createMeeting(t, "bot-1")
	ctx := context.Background()

	env.transcriber.err = &engine.TranscriberError{ExitCode: 1, Stderr: "boom"}
	require.NoError(t, env.orch.IngestRecording(ctx, "bot-1", bytes.NewReader([]byte("mp3"))))
	env.orch.Wait()

	m, err := env.store.GetMeeting(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, m.State())

	revs, err := env.store.ListAllRevisions(ctx, "bot-1")
	require.NoError(t, err)
	assert.Empty(t, revs)
}

func TestResumeProcessingRetriesFailedMeeting(t *testing.T) {
	env := newTestEnv(t)
	env.createMeeting(t, "bot-1")
	ctx := context.Background()

	env.transcriber.err = &engine.TranscriberError{ExitCode: 1, Stderr: "boom"}
	require.NoError(t, env.orch.IngestRecording(ctx, "bot-1", bytes.NewReader([]byte("mp3"))))
	env.orch.Wait()

	env.transcriber.err = nil
	require.NoError(t, env.orch.ResumeProcessing(ctx, "bot-1"))

	m, err := env.store.GetMeeting(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, m.State())
}

func TestResumeProcessingGuards(t *testing.T) {
	env := newTestEnv(t)
	env.createMeeting(t, "bot-1")
	ctx := context.Background()

	err := env.orch.ResumeProcessing(ctx, "bot-1")
	assert.ErrorIs(t, err, ErrProcessingActive, "nothing to resume while initializing")

	require.NoError(t, env.store.UpdateProcessState(ctx, "bot-1", models.StateTranscribing, nil))
	assert.NoError(t, env.orch.ResumeProcessing(ctx, "bot-1"), "in-flight run is left alone")
}

func TestStatusPollTriggersSingleIngestion(t *testing.T) {
	env := newTestEnv(t)
	env.createMeeting(t, "bot-1")
	env.bots.status = botclient.BotStatus{
		RawStatus:  "done",
		AudioReady: true,
		AudioURL:   "https://cdn/rec.mp3",
	}

	const pollers = 6
	var wg sync.WaitGroup
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.orch.HandleStatusPoll(context.Background(), "bot-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	env.orch.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&env.bots.downloads),
		"exactly one poll wins the download claim")

	m, err := env.store.GetMeeting(context.Background(), "bot-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, m.State())
}

func TestStatusPollDiscardsDeadMeeting(t *testing.T) {
	env := newTestEnv(t)
	env.createMeeting(t, "bot-1")
	env.bots.status = botclient.BotStatus{RawStatus: "fatal"}

	result, err := env.orch.HandleStatusPoll(context.Background(), "bot-1")
	require.NoError(t, err)
	assert.True(t, result.Discarded)
	assert.Equal(t, "fatal", result.RawStatus)

	_, err = env.store.GetMeeting(context.Background(), "bot-1")
	assert.ErrorIs(t, err, models.ErrMeetingNotFound)
}

func TestStatusPollReportsStoredState(t *testing.T) {
	env := newTestEnv(t)
	env.createMeeting(t, "bot-1")
	ctx := context.Background()
	require.NoError(t, env.store.UpdateProcessState(ctx, "bot-1", models.StateTranscribing, nil))

	result, err := env.orch.HandleStatusPoll(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateTranscribing, result.ProcessState)
	assert.False(t, result.Discarded)
}

// completeMeeting runs the full ingest+process path as test setup.
func completeMeeting(t *testing.T, env *testEnv, id string) {
	t.Helper()
	env.createMeeting(t, id)
	require.NoError(t, env.orch.IngestRecording(context.Background(), id, bytes.NewReader([]byte("mp3"))))
	env.orch.Wait()
}

func TestSaveTranscriptRevision(t *testing.T) {
	env := newTestEnv(t)
	completeMeeting(t, env, "bot-1")
	ctx := context.Background()

	res, err := env.orch.SaveTranscriptRevision(ctx, "bot-1", "edited transcript text",
		[]engine.Segment{{Start: 0, End: 1, Text: "edited transcript text"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Version)
	assert.Equal(t, crypto.ContentHash("edited transcript text"), res.Hash)

	// Transcript and summary versions stay in lockstep.
	for _, kind := range []models.ArtifactKind{models.KindTranscript, models.KindSummary} {
		v, err := env.store.LatestVersion(ctx, "bot-1", kind)
		require.NoError(t, err)
		assert.Equal(t, 2, v, string(kind))
	}

	// The head now serves the edited content.
	rc, err := env.orch.OpenArtifact(ctx, "bot-1", "transcript")
	require.NoError(t, err)
	blob, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	var transcript engine.Transcript
	require.NoError(t, json.Unmarshal(blob, &transcript))
	assert.Equal(t, "edited transcript text", transcript.Text)

	m, err := env.store.GetMeeting(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, 2, m.ActiveVersion)
}

func TestRevertToRevision(t *testing.T) {
	env := newTestEnv(t)
	completeMeeting(t, env, "bot-1")
	ctx := context.Background()

	_, err := env.orch.SaveTranscriptRevision(ctx, "bot-1", "edited away", nil)
	require.NoError(t, err)

	revs, err := env.store.ListRevisions(ctx, "bot-1", models.KindTranscript)
	require.NoError(t, err)
	v1 := revs[len(revs)-1] // oldest

	res, err := env.orch.RevertToRevision(ctx, "bot-1", v1.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Version, "revert appends, never rewrites")
	assert.Equal(t, v1.ContentHash, res.Hash, "restored content equals the old revision")
}

func TestRevertRejectsSummaryRevision(t *testing.T) {
	env := newTestEnv(t)
	completeMeeting(t, env, "bot-1")
	ctx := context.Background()

	revs, err := env.store.ListRevisions(ctx, "bot-1", models.KindSummary)
	require.NoError(t, err)
	require.NotEmpty(t, revs)

	_, err = env.orch.RevertToRevision(ctx, "bot-1", revs[0].ID)
	assert.ErrorIs(t, err, ErrNotTranscript)
}

func TestRevertRejectsForeignRevision(t *testing.T) {
	env := newTestEnv(t)
	completeMeeting(t, env, "bot-1")
	completeMeeting(t, env, "bot-2")
	ctx := context.Background()

	revs, err := env.store.ListRevisions(ctx, "bot-2", models.KindTranscript)
	require.NoError(t, err)

	_, err = env.orch.RevertToRevision(ctx, "bot-1", revs[0].ID)
	assert.ErrorIs(t, err, models.ErrRevisionNotFound)
}

func TestCheckoutToVersion(t *testing.T) {
	env := newTestEnv(t)
	completeMeeting(t, env, "bot-1")
	ctx := context.Background()

	_, err := env.orch.SaveTranscriptRevision(ctx, "bot-1", "second version", nil)
	require.NoError(t, err)

	require.NoError(t, env.orch.CheckoutToVersion(ctx, "bot-1", 1))

	rc, err := env.orch.OpenArtifact(ctx, "bot-1", "transcript")
	require.NoError(t, err)
	blob, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	var transcript engine.Transcript
	require.NoError(t, json.Unmarshal(blob, &transcript))
	assert.Equal(t, "hello world this is the meeting", transcript.Text)
}

func TestEditAfterCheckoutRestoresHead(t *testing.T) {
	env := newTestEnv(t)
	completeMeeting(t, env, "bot-1")
	ctx := context.Background()

	_, err := env.orch.SaveTranscriptRevision(ctx, "bot-1", "second version", nil)
	require.NoError(t, err)
	require.NoError(t, env.orch.CheckoutToVersion(ctx, "bot-1", 1))

	// A fresh edit moves file_paths off the checked-out snapshots and
	// back onto the heads.
	_, err = env.orch.SaveTranscriptRevision(ctx, "bot-1", "version three text", nil)
	require.NoError(t, err)

	m, err := env.store.GetMeeting(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, 3, m.ActiveVersion)
	paths := m.GetFilePaths()
	assert.Equal(t, env.vault.DataPath("bot-1", "transcript"), paths["transcript"])
	assert.Equal(t, env.vault.DataPath("bot-1", "summary"), paths["summary"])
	assert.Equal(t, env.vault.AudioPath("bot-1"), paths["audio"])

	rc, err := env.orch.OpenArtifact(ctx, "bot-1", "transcript")
	require.NoError(t, err)
	blob, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	var transcript engine.Transcript
	require.NoError(t, json.Unmarshal(blob, &transcript))
	assert.Equal(t, "version three text", transcript.Text)
}

func TestRetryFromInterruptedDownload(t *testing.T) {
	env := newTestEnv(t)
	env.createMeeting(t, "bot-1")
	ctx := context.Background()

	// Audio and key are in the vault but the state write to downloaded
	// was lost, as after a crash mid-claim.
	require.NoError(t, env.orch.ingest(ctx, "bot-1", bytes.NewReader([]byte("mp3"))))
	require.NoError(t, env.store.UpdateProcessState(ctx, "bot-1", models.StateDownloading, nil))

	require.NoError(t, env.orch.Retry(ctx, "bot-1"))
	env.orch.Wait()

	m, err := env.store.GetMeeting(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, m.State())
}

func TestVerifyHashExact(t *testing.T) {
	env := newTestEnv(t)
	completeMeeting(t, env, "bot-1")

	hash := crypto.ContentHash("hello world this is the meeting")
	res, err := env.orch.VerifyHash(context.Background(), "", []string{hash})
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, "exact", res.Method)
	require.NotNil(t, res.Revision)
	assert.Equal(t, 1, res.Revision.Version)
}

func TestVerifyHashFuzzyCollapsedWhitespace(t *testing.T) {
	env := newTestEnv(t)
	env.transcriber.transcript = &engine.Transcript{Text: "hello   world\n\nwith   layout"}
	completeMeeting(t, env, "bot-1")

	// A client hashing PDF-extracted text sees collapsed whitespace.
	hash := crypto.ContentHash("hello world with layout")
	res, err := env.orch.VerifyHash(context.Background(), "bot-1", []string{hash})
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, "text_collapsed", res.Method)
}

func TestVerifyHashFuzzyRenderedSummary(t *testing.T) {
	env := newTestEnv(t)
	env.orch.summarizer = &fakeSummarizer{summary: &engine.Summary{
		Summary: "We agreed on the plan.",
		Actions: []string{"Write it down"},
	}}
	completeMeeting(t, env, "bot-1")

	rendered := "SUMMARY: We agreed on the plan.\n\nACTION ITEMS:\n- Write it down\n"
	res, err := env.orch.VerifyHash(context.Background(), "bot-1", []string{crypto.ContentHash(rendered)})
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.True(t, strings.HasPrefix(res.Method, "summary_rendered"))
}

func TestVerifyHashNoMatch(t *testing.T) {
	env := newTestEnv(t)
	completeMeeting(t, env, "bot-1")

	res, err := env.orch.VerifyHash(context.Background(), "bot-1",
		[]string{crypto.ContentHash("tampered content")})
	require.NoError(t, err)
	assert.False(t, res.Verified)
}

func TestDeleteMeetingShreds(t *testing.T) {
	env := newTestEnv(t)
	completeMeeting(t, env, "bot-1")
	ctx := context.Background()

	require.NoError(t, env.orch.DeleteMeeting(ctx, "bot-1"))

	_, err := env.store.GetMeeting(ctx, "bot-1")
	assert.ErrorIs(t, err, models.ErrMeetingNotFound)
	assert.False(t, env.vault.Exists(env.vault.AudioPath("bot-1")))
	assert.False(t, env.vault.Exists(env.vault.DataPath("bot-1", "transcript")))
	assert.False(t, env.vault.Exists(env.vault.SnapshotPath("bot-1", "transcript", 1)))

	env.orch.mu.Lock()
	_, held := env.orch.locks["bot-1"]
	env.orch.mu.Unlock()
	assert.False(t, held, "deleted meeting's mutex is pruned")
}

func TestOpenArtifactMissingKind(t *testing.T) {
	env := newTestEnv(t)
	env.createMeeting(t, "bot-1")

	_, err := env.orch.OpenArtifact(context.Background(), "bot-1", "transcript")
	assert.Error(t, err)
}
