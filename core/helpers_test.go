package qcore

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *Application {
	t.Helper()
	cfg := DefaultConfig()
	cfg.WarnRate = 0
	app, err := NewApplication(cfg, WithLogger(zerolog.New(io.Discard)))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, app.Close(ctx))
	})
	return app
}

func startThread(t *testing.T, app *Application, name string) *Thread {
	t.Helper()
	th := app.NewThread(name)
	require.NoError(t, th.Start())
	return th
}

// Counter is the object most tests connect to and from.
type Counter struct {
	Object

	ValueChanged func(value int)             `qcore:"value"`
	Pair         func(value int, tag string) `qcore:"value,tag"`

	Value int
	Label string

	calls int
}

func (c *Counter) SetValue(v int) {
	c.calls++
	if c.Value == v {
		return
	}
	c.Value = v
	c.ValueChanged(v)
}

func (c *Counter) Fail(msg string) error {
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}

func newCounter(t *testing.T, app *Application, parent AnyObject) *Counter {
	t.Helper()
	c := &Counter{}
	require.NoError(t, app.Init(c, parent))
	return c
}

// Recorder records the calls it receives on a channel, so it can be used
// from any thread.
type Recorder struct {
	Object

	got chan int
}

func (r *Recorder) Record(v int) {
	r.got <- v
}

func newRecorder(t *testing.T, th *Thread) *Recorder {
	t.Helper()
	r := &Recorder{got: make(chan int, 16)}
	require.NoError(t, th.Init(r, nil))
	return r
}

func (r *Recorder) wait(t *testing.T) int {
	t.Helper()
	select {
	case v := <-r.got:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a call")
		return 0
	}
}

// eventLog records the types of the events it receives.
type eventLog struct {
	Object

	types []EventType
}

func (l *eventLog) Event(e Event) bool {
	if e.Type() >= EventUser || e.Type().IsUserInput() || e.Type() == EventDynamicPropertyChange {
		l.types = append(l.types, e.Type())
	}
	return false
}
