// Package qcore is an object runtime for Go applications built around objects, signals and slots.
//
// Objects are organized in ownership trees, live in a thread that delivers their events, and
// communicate through typed signal/slot connections that work the same whether sender and receiver
// share a thread or not.
//
// Objects
//
// When Object is embedded in a struct, that type is "an object class". Its func fields are signals,
// its other exported fields are properties, and its exported methods are slots. Embedding another
// object type instead of Object makes that type the superclass, and its members are inherited.
//
//  type Counter struct {
//      qcore.Object
//      Value        int
//      ValueChanged func(value int) `qcore:"value"`
//  }
//
//  func (c *Counter) SetValue(v int) {
//      if v != c.Value {
//          c.Value = v
//          c.ValueChanged(v)
//      }
//  }
//
// Objects must be initialized with Application.Init or Thread.Init before use. Initialization
// registers the class with the application's Registry and assigns every signal field, so calling
// the field emits the signal.
//
// Connections
//
// Connect links a signal to a slot, another signal or any function:
//
//  qcore.Connect(a, &a.ValueChanged, b, b.SetValue)
//  qcore.Connect(a, "valueChanged", b, "setValue", qcore.QueuedConnection)
//
// The connection type decides whether the slot runs synchronously in the emitter or is posted as an
// event to the receiver's thread. AutoConnection picks between the two by comparing the threads the
// sender and receiver live in when the signal is emitted.
//
// Threads and event loops
//
// A Thread owns a queue of posted events and runs event loops that deliver them. The main thread
// runs in the goroutine calling Application.Exec; other threads run on the application's worker
// pool after Thread.Start. Nested event loops are supported with EventLoop, and DeleteLater defers
// deletion until control returns to the loop that was running when it was called.
package qcore
