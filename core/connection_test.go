package qcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectDirect(t *testing.T) {
	app := newTestApp(t)
	a := newCounter(t, app, nil)
	b := newCounter(t, app, nil)

	c, err := Connect(a, &a.ValueChanged, b, b.SetValue, DirectConnection)
	require.NoError(t, err)
	assert.True(t, c.Connected())
	assert.Equal(t, DirectConnection, c.Type())
	assert.Equal(t, "valueChanged", c.Signal().Name)
	assert.Equal(t, a, c.Sender())
	assert.Equal(t, b, c.Receiver())
	assert.Equal(t, 1, a.Receivers("valueChanged"))
	assert.Equal(t, 1, b.Senders())

	a.SetValue(5)
	assert.Equal(t, 5, b.Value)
	assert.Equal(t, 1, b.calls)
}

func TestConnectSlotReferences(t *testing.T) {
	app := newTestApp(t)
	a := newCounter(t, app, nil)

	refs := map[string]any{
		"name":              "setValue",
		"method expression": (*Counter).SetValue,
	}
	for name, ref := range refs {
		t.Run(name, func(t *testing.T) {
			b := newCounter(t, app, nil)
			_, err := Connect(a, "valueChanged", b, ref)
			require.NoError(t, err)
			a.ValueChanged(7)
			assert.Equal(t, 7, b.Value)
			assert.Equal(t, 1, b.calls)
			assert.True(t, Disconnect(a, "valueChanged", b, ref))
			a.ValueChanged(8)
			assert.Equal(t, 7, b.Value)
		})
	}
}

func TestConnectMethodValue(t *testing.T) {
	app := newTestApp(t)
	a := newCounter(t, app, nil)
	b := newCounter(t, app, nil)
	c := newCounter(t, app, nil)

	// A method value calls the object it is bound to, not the receiver
	_, err := Connect(a, &a.ValueChanged, b, c.SetValue)
	require.NoError(t, err)
	a.ValueChanged(7)
	assert.Zero(t, b.Value)
	assert.Equal(t, 7, c.Value)

	// Even when it is a slot of the sender's own class
	d := newCounter(t, app, nil)
	e := newCounter(t, app, nil)
	_, err = ConnectFunc(d, &d.ValueChanged, e.SetValue)
	require.NoError(t, err)
	d.SetValue(3)
	assert.Equal(t, 1, d.calls)
	assert.Equal(t, 3, e.Value)
	assert.Equal(t, 1, e.calls)
}

func TestConnectSignalToSignal(t *testing.T) {
	app := newTestApp(t)
	a := newCounter(t, app, nil)
	b := newCounter(t, app, nil)

	_, err := Connect(a, &a.ValueChanged, b, &b.ValueChanged)
	require.NoError(t, err)
	var got []int
	_, err = ConnectFunc(b, "valueChanged", func(v int) { got = append(got, v) })
	require.NoError(t, err)

	a.ValueChanged(3)
	assert.Equal(t, []int{3}, got)
	// Relaying a signal does not touch the relay's state
	assert.Zero(t, b.Value)
}

func TestConnectArguments(t *testing.T) {
	app := newTestApp(t)
	a := newCounter(t, app, nil)
	b := newCounter(t, app, nil)

	// The slot may take a prefix of the signal's arguments
	_, err := Connect(a, &a.Pair, b, "setValue")
	require.NoError(t, err)
	a.Pair(4, "four")
	assert.Equal(t, 4, b.Value)

	var called bool
	_, err = ConnectFunc(a, &a.Pair, func() { called = true })
	require.NoError(t, err)
	a.Pair(5, "five")
	assert.True(t, called)

	_, err = Connect(a, "valueChanged", b, "fail")
	assert.ErrorIs(t, err, ErrIncompatibleArguments)
	_, err = ConnectFunc(a, "valueChanged", func(v, w int) {})
	assert.ErrorIs(t, err, ErrIncompatibleArguments)
	_, err = ConnectFunc(a, "valueChanged", func(v ...int) {})
	assert.ErrorIs(t, err, ErrIncompatibleArguments)

	_, err = Connect(a, "missing", b, "setValue")
	assert.ErrorIs(t, err, ErrUnknownSignal)
	_, err = Connect(a, "valueChanged", b, "missing")
	assert.ErrorIs(t, err, ErrUnknownSlot)
	_, err = Connect(a, &b.ValueChanged, b, "setValue")
	assert.ErrorIs(t, err, ErrUnknownSignal, "signal fields of other objects are rejected")
	_, err = Connect(a, "valueChanged", b, 42)
	assert.ErrorIs(t, err, ErrUnknownSlot)
	_, err = Connect(a, "valueChanged", &Counter{}, "setValue")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = Connect(a, "valueChanged", b, "setValue", ConnectionType(9))
	assert.Error(t, err)
}

func TestConnectByDescriptor(t *testing.T) {
	app := newTestApp(t)
	a := newCounter(t, app, nil)
	b := newCounter(t, app, nil)

	sig := a.Type().Signal("valueChanged")
	require.NotNil(t, sig)
	_, err := Connect(a, sig, b, "setValue")
	require.NoError(t, err)
	a.ValueChanged(9)
	assert.Equal(t, 9, b.Value)

	other := newRecorder(t, app.MainThread())
	_, err = Connect(other, sig, b, "setValue")
	assert.ErrorIs(t, err, ErrUnknownSignal)
}

func TestConnectUnique(t *testing.T) {
	app := newTestApp(t)
	a := newCounter(t, app, nil)
	b := newCounter(t, app, nil)

	_, err := Connect(a, "valueChanged", b, "setValue", UniqueConnection)
	require.NoError(t, err)
	_, err = Connect(a, &a.ValueChanged, b, (*Counter).SetValue, DirectConnection|UniqueConnection)
	assert.ErrorIs(t, err, ErrDuplicateConnection)

	// Without the flag duplicates are allowed and each one is called
	_, err = Connect(a, "valueChanged", b, "setValue")
	require.NoError(t, err)
	assert.Equal(t, 2, a.Receivers(&a.ValueChanged))

	a.ValueChanged(1)
	assert.Equal(t, 2, b.calls)
	assert.Equal(t, "direct|unique", (DirectConnection | UniqueConnection).String())
}

func TestConnectUniqueFuncs(t *testing.T) {
	app := newTestApp(t)
	a := newCounter(t, app, nil)

	// Closures from one literal are distinct functions
	got := map[int]bool{}
	for i := range 3 {
		_, err := ConnectFunc(a, "valueChanged", func(int) { got[i] = true }, UniqueConnection)
		require.NoError(t, err)
	}
	a.ValueChanged(1)
	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, got)
	assert.Equal(t, 3, a.Receivers("valueChanged"))
}

func TestDisconnect(t *testing.T) {
	app := newTestApp(t)
	a := newCounter(t, app, nil)
	b := newCounter(t, app, nil)
	c := newCounter(t, app, nil)

	c1, err := Connect(a, "valueChanged", b, "setValue")
	require.NoError(t, err)
	_, err = Connect(a, "pair", b, "setValue")
	require.NoError(t, err)
	_, err = Connect(a, "valueChanged", c, "setValue")
	require.NoError(t, err)

	assert.True(t, Disconnect(a, nil, b, nil))
	assert.False(t, c1.Connected())
	assert.False(t, Disconnect(a, nil, b, nil))
	assert.Zero(t, b.Senders())
	assert.True(t, a.IsSignalConnected("valueChanged"))
	assert.False(t, a.IsSignalConnected("pair"))

	a.ValueChanged(2)
	assert.Zero(t, b.Value)
	assert.Equal(t, 2, c.Value)

	assert.True(t, Disconnect(a, "valueChanged", nil, nil))
	assert.False(t, a.IsSignalConnected("valueChanged"))
	assert.False(t, c1.Disconnect())
}

func TestDisconnectFunc(t *testing.T) {
	app := newTestApp(t)
	a := newCounter(t, app, nil)

	var first, second int
	inc := func(int) { first++ }
	conn, err := ConnectFunc(a, "valueChanged", inc)
	require.NoError(t, err)
	_, err = ConnectFunc(a, "valueChanged", func(int) { second++ })
	require.NoError(t, err)

	// Functions cannot be matched, only their connections
	assert.False(t, Disconnect(a, "valueChanged", a, inc))
	assert.True(t, conn.Disconnect())
	a.ValueChanged(1)
	assert.Zero(t, first)
	assert.Equal(t, 1, second)

	assert.True(t, Disconnect(a, "valueChanged", a, nil))
	a.ValueChanged(2)
	assert.Equal(t, 1, second)
}

func TestSender(t *testing.T) {
	app := newTestApp(t)
	a := newCounter(t, app, nil)
	b := newCounter(t, app, nil)

	var sender AnyObject
	_, err := Connect(a, "valueChanged", b, func(int) { sender = b.Sender() })
	require.NoError(t, err)

	a.ValueChanged(1)
	assert.Equal(t, a, sender)
	assert.Nil(t, b.Sender())
}

func TestReceiverDeletedDisconnects(t *testing.T) {
	app := newTestApp(t)
	a := newCounter(t, app, nil)
	b := newCounter(t, app, nil)

	conn, err := Connect(a, "valueChanged", b, "setValue")
	require.NoError(t, err)
	Delete(b)
	assert.False(t, conn.Connected())
	assert.Nil(t, conn.Receiver())
	assert.Zero(t, a.Receivers("valueChanged"))

	a.ValueChanged(1)
	assert.Zero(t, b.calls)

	_, err = Connect(a, "valueChanged", b, "setValue")
	assert.ErrorIs(t, err, ErrObjectDestroyed)
}

func TestSenderDeletedDuringEmission(t *testing.T) {
	app := newTestApp(t)
	a := newCounter(t, app, nil)

	var calls []string
	_, err := ConnectFunc(a, "valueChanged", func(int) {
		calls = append(calls, "first")
		Delete(a)
	})
	require.NoError(t, err)
	_, err = ConnectFunc(a, "valueChanged", func(int) { calls = append(calls, "second") })
	require.NoError(t, err)

	a.ValueChanged(1)
	assert.Equal(t, []string{"first"}, calls)
	assert.True(t, a.WasDeleted())
}

func TestConnectDuringEmission(t *testing.T) {
	app := newTestApp(t)
	a := newCounter(t, app, nil)

	var late int
	_, err := ConnectFunc(a, "valueChanged", func(int) {
		_, err := ConnectFunc(a, "valueChanged", func(int) { late++ })
		assert.NoError(t, err)
	})
	require.NoError(t, err)

	// Connections made by a slot only see later emissions
	a.ValueChanged(1)
	assert.Zero(t, late)
	a.ValueChanged(2)
	assert.Equal(t, 1, late)
}

type notifier struct {
	Object

	Ping func()

	connected    []string
	disconnected []string
}

func (n *notifier) ConnectNotify(s *SignalDescriptor) {
	n.connected = append(n.connected, s.Name)
}

func (n *notifier) DisconnectNotify(s *SignalDescriptor) {
	name := "*"
	if s != nil {
		name = s.Name
	}
	n.disconnected = append(n.disconnected, name)
}

func TestConnectNotify(t *testing.T) {
	app := newTestApp(t)
	n := &notifier{}
	require.NoError(t, app.Init(n, nil))
	b := newCounter(t, app, nil)

	conn, err := Connect(n, &n.Ping, b, b.DeleteLater)
	require.NoError(t, err)
	assert.Equal(t, []string{"ping"}, n.connected)

	conn.Disconnect()
	assert.Equal(t, []string{"ping"}, n.disconnected)

	_, err = Connect(n, &n.Ping, b, "deleteLater")
	require.NoError(t, err)
	Disconnect(n, nil, nil, nil)
	assert.Equal(t, []string{"ping", "*"}, n.disconnected)

	// Destruction does not notify
	_, err = Connect(n, &n.Ping, b, "deleteLater")
	require.NoError(t, err)
	Delete(n)
	assert.Len(t, n.disconnected, 2)
}

func TestEmitByName(t *testing.T) {
	app := newTestApp(t)
	a := newCounter(t, app, nil)
	b := newCounter(t, app, nil)
	_, err := Connect(a, "pair", b, "setValue")
	require.NoError(t, err)

	require.NoError(t, a.Emit("pair", 3.0, "three"))
	assert.Equal(t, 3, b.Value)

	assert.ErrorIs(t, a.Emit("pair", 1), ErrIncompatibleArguments)
	assert.ErrorIs(t, a.Emit("pair", "x", "y"), ErrIncompatibleArguments)
	assert.ErrorIs(t, a.Emit("missing"), ErrUnknownSignal)
}

func TestConnectionTypeString(t *testing.T) {
	assert.Equal(t, "auto", AutoConnection.String())
	assert.Equal(t, "queued", QueuedConnection.String())
	assert.Equal(t, "blocking-queued", BlockingQueuedConnection.String())
	assert.Equal(t, "ConnectionType(7)", ConnectionType(7).String())
}
