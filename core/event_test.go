package qcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type filterObject struct {
	Object

	block EventType
	seen  []EventType
}

func (f *filterObject) EventFilter(watched AnyObject, e Event) bool {
	if e.Type() < EventUser {
		return false
	}
	f.seen = append(f.seen, e.Type())
	return e.Type() == f.block
}

func newEventLog(t *testing.T, app *Application) *eventLog {
	t.Helper()
	l := &eventLog{}
	require.NoError(t, app.Init(l, nil))
	return l
}

func TestSendEvent(t *testing.T) {
	app := newTestApp(t)
	l := newEventLog(t, app)

	assert.False(t, SendEvent(l, NewEvent(EventUser)))
	assert.Equal(t, []EventType{EventUser}, l.types)
	assert.False(t, SendEvent(&Counter{}, NewEvent(EventUser)))
}

func TestPostEventPriority(t *testing.T) {
	app := newTestApp(t)
	l := newEventLog(t, app)

	PostEvent(l, NewEvent(EventUser+1), LowEventPriority)
	PostEvent(l, NewEvent(EventUser+2))
	PostEvent(l, NewEvent(EventUser+3), HighEventPriority)
	PostEvent(l, NewEvent(EventUser+4))
	assert.Empty(t, l.types)

	app.ProcessEvents(AllEvents)
	assert.Equal(t, []EventType{EventUser + 3, EventUser + 2, EventUser + 4, EventUser + 1}, l.types)
}

type reposter struct {
	eventLog
}

func (r *reposter) Event(e Event) bool {
	if e.Type() == EventUser {
		PostEvent(r, NewEvent(EventUser+1))
	}
	return r.eventLog.Event(e)
}

func TestEventsPostedDuringDeliveryWait(t *testing.T) {
	app := newTestApp(t)
	r := &reposter{}
	require.NoError(t, app.Init(r, nil))

	PostEvent(r, NewEvent(EventUser))
	assert.True(t, app.ProcessEvents(AllEvents))
	assert.Equal(t, []EventType{EventUser}, r.types)
	assert.Equal(t, 1, app.MainThread().PendingEvents())

	assert.True(t, app.ProcessEvents(AllEvents))
	assert.Equal(t, []EventType{EventUser, EventUser + 1}, r.types)
}

func TestExcludeUserInputEvents(t *testing.T) {
	app := newTestApp(t)
	l := newEventLog(t, app)

	PostEvent(l, NewEvent(EventKeyPress))
	PostEvent(l, NewEvent(EventUser))
	PostEvent(l, NewEvent(EventMouseMove))

	app.ProcessEvents(ExcludeUserInputEvents)
	assert.Equal(t, []EventType{EventUser}, l.types)
	assert.Equal(t, 2, app.MainThread().PendingEvents())

	app.ProcessEvents(AllEvents)
	assert.Equal(t, []EventType{EventUser, EventKeyPress, EventMouseMove}, l.types)
}

func TestRemovePostedEvents(t *testing.T) {
	app := newTestApp(t)
	l := newEventLog(t, app)
	other := newEventLog(t, app)

	PostEvent(l, NewEvent(EventUser))
	PostEvent(l, NewEvent(EventUser+1))
	PostEvent(other, NewEvent(EventUser))

	RemovePostedEvents(l, EventUser)
	assert.Equal(t, 2, app.MainThread().PendingEvents())
	RemovePostedEvents(l, EventNone)
	assert.Equal(t, 1, app.MainThread().PendingEvents())

	app.MainThread().SendPostedEvents(other, EventNone)
	assert.Empty(t, l.types)
	assert.Equal(t, []EventType{EventUser}, other.types)
}

func TestEventFilters(t *testing.T) {
	app := newTestApp(t)
	l := newEventLog(t, app)
	first := &filterObject{block: EventUser + 1}
	second := &filterObject{block: EventUser + 2}
	require.NoError(t, app.Init(first, nil))
	require.NoError(t, app.Init(second, nil))

	l.InstallEventFilter(first)
	l.InstallEventFilter(second)

	SendEvent(l, NewEvent(EventUser))
	SendEvent(l, NewEvent(EventUser+1))
	SendEvent(l, NewEvent(EventUser+2))

	assert.Equal(t, []EventType{EventUser}, l.types)
	// The most recently installed filter sees events first
	assert.Equal(t, []EventType{EventUser, EventUser + 1, EventUser + 2}, second.seen)
	assert.Equal(t, []EventType{EventUser, EventUser + 1}, first.seen)

	l.RemoveEventFilter(second)
	SendEvent(l, NewEvent(EventUser+2))
	assert.Equal(t, []EventType{EventUser, EventUser + 2}, l.types)

	// A deleted filter is skipped
	Delete(first)
	SendEvent(l, NewEvent(EventUser+1))
	assert.Equal(t, []EventType{EventUser, EventUser + 2, EventUser + 1}, l.types)
}

func TestEventFilterOtherThread(t *testing.T) {
	app := newTestApp(t)
	l := newEventLog(t, app)
	f := &filterObject{block: EventUser}
	require.NoError(t, app.NewThread("worker").Init(f, nil))

	l.InstallEventFilter(f)
	SendEvent(l, NewEvent(EventUser))
	assert.Empty(t, f.seen)
	assert.Equal(t, []EventType{EventUser}, l.types)
}

func TestRegisterEventType(t *testing.T) {
	a := RegisterEventType(5000)
	assert.Equal(t, EventType(5000), a)
	b := RegisterEventType(5000)
	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, b, EventUser)
	assert.LessOrEqual(t, b, EventMaxUser)
	c := RegisterEventType(-1)
	assert.NotEqual(t, b, c)
}

func TestEventAccept(t *testing.T) {
	e := NewEvent(EventUser)
	assert.True(t, e.IsAccepted())
	e.Ignore()
	assert.False(t, e.IsAccepted())
	e.Accept()
	assert.True(t, e.IsAccepted())
	assert.False(t, e.Spontaneous())
	assert.True(t, EventKeyPress.IsUserInput())
	assert.False(t, EventTimer.IsUserInput())
}
