package store

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	qcore "github.com/CrimsonAS/qcore/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settings struct {
	qcore.Object

	VolumeChanged func(volume int) `qcore:"volume"`

	Volume int    `json:"volume"`
	Theme  string `json:"theme"`
	Muted  bool
}

func newApp(t *testing.T) *qcore.Application {
	t.Helper()
	app, err := qcore.NewApplication(qcore.DefaultConfig(), qcore.WithLogger(zerolog.New(io.Discard)))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, app.Close(ctx))
	})
	return app
}

func newSettings(t *testing.T, app *qcore.Application, name string, parent qcore.AnyObject) *settings {
	t.Helper()
	s := &settings{}
	require.NoError(t, app.Init(s, parent))
	s.SetObjectName(name)
	return s
}

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path, zerolog.New(io.Discard))
	require.NoError(t, err)
	return s
}

func TestObjectPath(t *testing.T) {
	app := newApp(t)
	root := newSettings(t, app, "app", nil)
	audio := newSettings(t, app, "audio", root)

	path, err := ObjectPath(audio)
	require.NoError(t, err)
	assert.Equal(t, "app/audio", path)

	root.SetObjectName("")
	_, err = ObjectPath(audio)
	assert.ErrorIs(t, err, ErrUnnamedObject)
}

func TestSaveRestore(t *testing.T) {
	app := newApp(t)
	path := filepath.Join(t.TempDir(), "settings.db")
	st := openStore(t, path)

	s := newSettings(t, app, "audio", nil)
	s.Volume = 7
	s.Theme = "dark"
	s.Muted = true
	require.NoError(t, s.SetProperty("extra", 3))
	require.NoError(t, st.Save(s))
	require.NoError(t, st.Close())

	// Restored from a reopened database into a new object
	st = openStore(t, path)
	defer st.Close()
	r := newSettings(t, app, "audio", nil)
	volumes := 0
	_, err := qcore.ConnectFunc(r, "volumeChanged", func(int) { volumes++ })
	require.NoError(t, err)

	require.NoError(t, st.Restore(r))
	assert.Equal(t, 7, r.Volume)
	assert.Equal(t, "dark", r.Theme)
	assert.True(t, r.Muted)
	assert.Equal(t, "audio", r.ObjectName())
	assert.Equal(t, 3.0, r.Property("extra"))
	assert.Equal(t, 1, volumes)

	keys, err := st.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"audio"}, keys)

	require.NoError(t, st.Delete("audio"))
	assert.ErrorIs(t, st.Restore(r), ErrNotSaved)
}

func TestSaveErrors(t *testing.T) {
	app := newApp(t)
	st := openStore(t, filepath.Join(t.TempDir(), "settings.db"))
	defer st.Close()

	assert.ErrorIs(t, st.Save(&settings{}), qcore.ErrNotInitialized)
	assert.ErrorIs(t, st.Restore(&settings{}), qcore.ErrNotInitialized)
	assert.ErrorIs(t, st.Save(newSettings(t, app, "", nil)), ErrUnnamedObject)
	assert.ErrorIs(t, st.Track(newSettings(t, app, "", nil)), ErrUnnamedObject)

	// Unencodable dynamic properties are skipped
	s := newSettings(t, app, "video", nil)
	require.NoError(t, s.SetProperty("callback", make(chan int)))
	require.NoError(t, st.Save(s))
	require.NoError(t, st.Restore(s))
	assert.Equal(t, []string{"callback"}, s.DynamicPropertyNames())
}

// audioV2 changed the type of the volume property.
type audioV2 struct {
	qcore.Object

	Volume string `json:"volume"`
}

func TestRestoreMismatchedValue(t *testing.T) {
	app := newApp(t)
	st := openStore(t, filepath.Join(t.TempDir(), "settings.db"))
	defer st.Close()

	s := newSettings(t, app, "audio", nil)
	require.NoError(t, s.SetProperty("volume", 4))
	require.NoError(t, st.Save(s))

	a := &audioV2{Volume: "loud"}
	require.NoError(t, app.Init(a, nil))
	a.SetObjectName("audio")
	require.NoError(t, st.Restore(a))

	// The mismatched value is skipped, unknown names become dynamic
	assert.Equal(t, "loud", a.Volume)
	assert.Equal(t, []string{"muted", "theme"}, a.DynamicPropertyNames())
	assert.Equal(t, false, a.Property("muted"))
}

func TestTrack(t *testing.T) {
	app := newApp(t)
	st := openStore(t, filepath.Join(t.TempDir(), "settings.db"))
	defer st.Close()

	s := newSettings(t, app, "audio", nil)
	require.NoError(t, st.Track(s))
	require.NoError(t, st.Track(s))

	require.NoError(t, s.SetProperty("volume", 9))
	require.NoError(t, s.SetProperty("theme", "light"))

	r := newSettings(t, app, "audio", nil)
	require.NoError(t, st.Restore(r))
	assert.Equal(t, 9, r.Volume)
	assert.Equal(t, "light", r.Theme)

	keys, err := st.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"audio"}, keys)
}

func TestTrackTwoStores(t *testing.T) {
	app := newApp(t)
	dir := t.TempDir()
	first := openStore(t, filepath.Join(dir, "first.db"))
	defer first.Close()
	second := openStore(t, filepath.Join(dir, "second.db"))
	defer second.Close()

	s := newSettings(t, app, "audio", nil)
	require.NoError(t, first.Track(s))
	require.NoError(t, second.Track(s))
	require.NoError(t, s.SetProperty("volume", 5))

	for _, st := range []*Store{first, second} {
		r := newSettings(t, app, "audio", nil)
		require.NoError(t, st.Restore(r))
		assert.Equal(t, 5, r.Volume)
	}

	// A destroyed object is no longer tracked
	qcore.Delete(s)
	first.mu.Lock()
	assert.Empty(t, first.tracked)
	first.mu.Unlock()
}
