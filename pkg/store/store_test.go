package store

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjoe/Talktrace-backend/pkg/crypto"
	"github.com/alfredjoe/Talktrace-backend/pkg/store/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	master := make([]byte, 32)
	_, err := rand.Read(master)
	require.NoError(t, err)

	s, err := New(Config{Path: ":memory:"}, master)
	require.NoError(t, err)
	return s
}

func createTestMeeting(t *testing.T, s *Store, userID, botID string) *models.Meeting {
	t.Helper()
	m, err := s.CreateMeeting(context.Background(), userID, botID)
	require.NoError(t, err)
	return m
}

func TestCreateAndGetMeeting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := createTestMeeting(t, s, "user-1", "bot-1")
	assert.Equal(t, "bot-1", m.ID)
	assert.Equal(t, models.StateInitializing, m.State())
	assert.NotZero(t, m.CreatedAt)

	got, err := s.GetMeeting(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)

	_, err = s.GetMeeting(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrMeetingNotFound)
}

func TestCreateDuplicateMeeting(t *testing.T) {
	s := newTestStore(t)
	createTestMeeting(t, s, "user-1", "bot-1")

	_, err := s.CreateMeeting(context.Background(), "user-1", "bot-1")
	assert.ErrorIs(t, err, models.ErrDuplicateMeeting)
}

func TestListMeetingsByUserNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m1 := createTestMeeting(t, s, "user-1", "bot-1")
	m2 := createTestMeeting(t, s, "user-1", "bot-2")
	createTestMeeting(t, s, "user-2", "bot-3")

	// Force a strict ordering regardless of clock resolution.
	require.NoError(t, s.db.Model(m1).Update("created_at", 1000).Error)
	require.NoError(t, s.db.Model(m2).Update("created_at", 2000).Error)

	list, err := s.ListMeetingsByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bot-2", list[0].ID)
	assert.Equal(t, "bot-1", list[1].ID)
}

func TestUpdateProcessState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := createTestMeeting(t, s, "user-1", "bot-1")
	before := m.CurrentTimestamp

	duration := 95
	err := s.UpdateProcessState(ctx, "bot-1", models.StateCompleted, &StateUpdate{
		FilePaths: map[string]string{
			"audio":      "audio/bot-1.enc",
			"transcript": "data/bot-1_transcript.enc",
			"summary":    "data/bot-1_summary.enc",
		},
		DurationSeconds: &duration,
	})
	require.NoError(t, err)

	got, err := s.GetMeeting(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, got.State())
	assert.Equal(t, 95, got.DurationSeconds)
	assert.GreaterOrEqual(t, got.CurrentTimestamp, before)
	assert.Equal(t, "audio/bot-1.enc", got.GetFilePaths()["audio"])

	// Partial update leaves existing fields untouched.
	err = s.UpdateProcessState(ctx, "bot-1", models.StateFailed, nil)
	require.NoError(t, err)
	got, err = s.GetMeeting(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, 95, got.DurationSeconds)
	assert.Len(t, got.GetFilePaths(), 3)

	err = s.UpdateProcessState(ctx, "missing", models.StateFailed, nil)
	assert.ErrorIs(t, err, models.ErrMeetingNotFound)
}

func TestClaimForDownloadCAS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestMeeting(t, s, "user-1", "bot-1")

	won, err := s.ClaimForDownload(ctx, "bot-1")
	require.NoError(t, err)
	assert.True(t, won)

	// Second claim loses: state is no longer initializing.
	won, err = s.ClaimForDownload(ctx, "bot-1")
	require.NoError(t, err)
	assert.False(t, won)

	got, err := s.GetMeeting(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateDownloading, got.State())
}

func TestClaimForDownloadConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestMeeting(t, s, "user-1", "bot-1")

	const pollers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, pollers)
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.ClaimForDownload(ctx, "bot-1")
			if err == nil && won {
				wins <- true
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Equal(t, 1, len(wins), "exactly one poller claims the download")
}

func TestMeetingKeyRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestMeeting(t, s, "user-1", "bot-1")

	key, iv, err := crypto.GenerateDataKey()
	require.NoError(t, err)
	require.NoError(t, s.StoreMeetingKey(ctx, "bot-1", key, iv))

	gotKey, gotIV, err := s.GetMeetingKey(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, key, gotKey)
	assert.Equal(t, iv, gotIV)

	// The raw key never touches storage unwrapped.
	var record models.MeetingKey
	require.NoError(t, s.db.Where("meeting_id = ?", "bot-1").First(&record).Error)
	assert.NotContains(t, record.WrappedKey, string(key))
	assert.NotEmpty(t, record.AuthTag)

	_, _, err = s.GetMeetingKey(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrKeyNotFound)
}

func TestMeetingKeyTamperDetection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestMeeting(t, s, "user-1", "bot-1")

	key, iv, err := crypto.GenerateDataKey()
	require.NoError(t, err)
	require.NoError(t, s.StoreMeetingKey(ctx, "bot-1", key, iv))

	// Flip one hex digit of the auth tag.
	var record models.MeetingKey
	require.NoError(t, s.db.Where("meeting_id = ?", "bot-1").First(&record).Error)
	tag := []byte(record.AuthTag)
	if tag[0] == 'a' {
		tag[0] = 'b'
	} else {
		tag[0] = 'a'
	}
	require.NoError(t, s.db.Model(&record).Update("auth_tag", string(tag)).Error)

	_, _, err = s.GetMeetingKey(ctx, "bot-1")
	assert.ErrorIs(t, err, crypto.ErrKeyUnwrap)
}

func TestRevisionVersioning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestMeeting(t, s, "user-1", "bot-1")

	v, err := s.LatestVersion(ctx, "bot-1", models.KindTranscript)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	for i := 1; i <= 3; i++ {
		_, err := s.AddRevision(ctx, "bot-1", i, crypto.ContentHash(string(rune('a'+i))),
			"data/bot-1_transcript_v1.enc", models.KindTranscript)
		require.NoError(t, err)
	}

	v, err = s.LatestVersion(ctx, "bot-1", models.KindTranscript)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	// Summary counter is coupled by convention, not by the store.
	v, err = s.LatestVersion(ctx, "bot-1", models.KindSummary)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	revs, err := s.ListRevisions(ctx, "bot-1", models.KindTranscript)
	require.NoError(t, err)
	require.Len(t, revs, 3)
	assert.Equal(t, 3, revs[0].Version)
	assert.Equal(t, 1, revs[2].Version)
}

func TestFindRevisionByHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestMeeting(t, s, "user-1", "bot-1")

	hash := crypto.ContentHash("hello world")
	_, err := s.AddRevision(ctx, "bot-1", 1, hash, "data/bot-1_transcript_v1.enc", models.KindTranscript)
	require.NoError(t, err)

	rev, err := s.FindRevisionByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, 1, rev.Version)
	assert.Equal(t, string(models.KindTranscript), rev.Kind)

	_, err = s.FindRevisionByHash(ctx, crypto.ContentHash("other"))
	assert.ErrorIs(t, err, models.ErrRevisionNotFound)
}

func TestCheckoutVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestMeeting(t, s, "user-1", "bot-1")

	require.NoError(t, s.UpdateProcessState(ctx, "bot-1", models.StateCompleted, &StateUpdate{
		FilePaths: map[string]string{
			"audio":      "audio/bot-1.enc",
			"transcript": "data/bot-1_transcript.enc",
			"summary":    "data/bot-1_summary.enc",
		},
	}))

	for v := 1; v <= 2; v++ {
		_, err := s.AddRevision(ctx, "bot-1", v, crypto.ContentHash(fmt.Sprintf("t%d", v)),
			snapshotPath("bot-1", "transcript", v), models.KindTranscript)
		require.NoError(t, err)
		_, err = s.AddRevision(ctx, "bot-1", v, crypto.ContentHash(fmt.Sprintf("s%d", v)),
			snapshotPath("bot-1", "summary", v), models.KindSummary)
		require.NoError(t, err)
	}

	require.NoError(t, s.CheckoutVersion(ctx, "bot-1", 1))

	got, err := s.GetMeeting(ctx, "bot-1")
	require.NoError(t, err)
	paths := got.GetFilePaths()
	assert.Equal(t, 1, got.ActiveVersion)
	assert.Equal(t, snapshotPath("bot-1", "transcript", 1), paths["transcript"])
	assert.Equal(t, snapshotPath("bot-1", "summary", 1), paths["summary"])
	// Audio pointer is preserved.
	assert.Equal(t, "audio/bot-1.enc", paths["audio"])

	// Checkout symmetry: moving to 2 afterwards lands on 2's paths.
	require.NoError(t, s.CheckoutVersion(ctx, "bot-1", 2))
	got, err = s.GetMeeting(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, snapshotPath("bot-1", "transcript", 2), got.GetFilePaths()["transcript"])

	assert.ErrorIs(t, s.CheckoutVersion(ctx, "bot-1", 9), models.ErrRevisionNotFound)
}

// snapshotPath mirrors the vault's snapshot naming for test fixtures.
func snapshotPath(id, kind string, v int) string {
	return fmt.Sprintf("data/%s_%s_v%d.enc", id, kind, v)
}

func TestDeleteMeetingCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestMeeting(t, s, "user-1", "bot-1")

	key, iv, err := crypto.GenerateDataKey()
	require.NoError(t, err)
	require.NoError(t, s.StoreMeetingKey(ctx, "bot-1", key, iv))
	_, err = s.AddRevision(ctx, "bot-1", 1, crypto.ContentHash("x"),
		"data/bot-1_transcript_v1.enc", models.KindTranscript)
	require.NoError(t, err)

	require.NoError(t, s.DeleteMeeting(ctx, "bot-1"))

	_, err = s.GetMeeting(ctx, "bot-1")
	assert.ErrorIs(t, err, models.ErrMeetingNotFound)
	_, _, err = s.GetMeetingKey(ctx, "bot-1")
	assert.ErrorIs(t, err, models.ErrKeyNotFound)
	revs, err := s.ListAllRevisions(ctx, "bot-1")
	require.NoError(t, err)
	assert.Empty(t, revs)

	assert.ErrorIs(t, s.DeleteMeeting(ctx, "bot-1"), models.ErrMeetingNotFound)
}
