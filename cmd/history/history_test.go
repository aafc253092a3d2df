package history

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/vocalcoach/internal/conf"
	"github.com/tphakala/vocalcoach/internal/datastore"
	"github.com/tphakala/vocalcoach/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func seededStore(t *testing.T) *datastore.SQLiteStore {
	t.Helper()
	store := &datastore.SQLiteStore{Path: filepath.Join(t.TempDir(), "history.db")}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	started := time.Date(2026, 4, 2, 18, 30, 0, 0, time.UTC)
	require.NoError(t, store.SaveSession(&datastore.Session{
		SessionID: "first", StartedAt: started, DurationSeconds: 12.5,
		HasAccuracy: true, AverageAccuracy: 0.8, AverageVolume: 0.4, CycleCount: 16,
		RecordingPath: "recordings/first.wav",
	}, []datastore.FeedbackEvent{
		{ElapsedSeconds: 1, Note: "A4", FrequencyHz: 441, Status: "available", CentError: 3.9, Accuracy: 0.96, Volume: 0.4, Messages: "good pitch\ngood volume"},
		{ElapsedSeconds: 1.5, Status: "silence", Messages: "sing louder"},
	}))
	require.NoError(t, store.SaveSession(&datastore.Session{
		SessionID: "second", StartedAt: started.Add(time.Hour), DurationSeconds: 7.5,
	}, nil))
	return store
}

func TestListTable(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, list(&out, seededStore(t), &options{limit: 10}))
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "ACCURACY")
	assert.Contains(t, string(lines[1]), "second")
	assert.Contains(t, string(lines[1]), "n/a")
	assert.Contains(t, string(lines[2]), "80%")
	assert.Contains(t, string(lines[2]), "recordings/first.wav")
}

func TestListEmpty(t *testing.T) {
	store := &datastore.SQLiteStore{Path: filepath.Join(t.TempDir(), "empty.db")}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	var out bytes.Buffer
	require.NoError(t, list(&out, store, &options{limit: 10}))
	assert.Contains(t, out.String(), "No sessions recorded yet")
}

func TestShowSession(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, show(&out, seededStore(t), "first", &options{}))
	text := out.String()
	assert.Contains(t, text, "Session first")
	assert.Contains(t, text, "+3.9")
	assert.Contains(t, text, "good pitch, good volume")
	assert.Contains(t, text, "sing louder")
}

func TestShowMissing(t *testing.T) {
	err := show(&bytes.Buffer{}, seededStore(t), "nope", &options{})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestStatsJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, stats(&out, seededStore(t), &options{jsonOutput: true}))
	assert.Contains(t, out.String(), `"Sessions": 2`)
	assert.Contains(t, out.String(), `"TotalSeconds": 20`)
}

func TestHistoryDisabled(t *testing.T) {
	settings := &conf.Settings{Datastore: conf.DatastoreSettings{Enabled: false}}
	err := withStore(settings, func(datastore.Interface) error { return nil })
	require.Error(t, err)
}

func TestDeleteCommand(t *testing.T) {
	settings := &conf.Settings{Datastore: conf.DatastoreSettings{Enabled: true, Path: filepath.Join(t.TempDir(), "h.db")}}
	require.NoError(t, withStore(settings, func(store datastore.Interface) error {
		return store.SaveSession(&datastore.Session{SessionID: "gone", StartedAt: time.Now()}, nil)
	}))

	cmd := Command(settings)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"delete", "gone"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Deleted session gone")

	cmd.SetArgs([]string{"delete", "gone"})
	require.Error(t, cmd.Execute())
}
