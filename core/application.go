package qcore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Application owns the state shared by a set of objects: the type registry,
// the main thread, the worker pool that runs the other threads and the
// logger. Objects of different applications must not be connected.
type Application struct {
	cfg      *Config
	log      zerolog.Logger
	warner   *warner
	registry *Registry
	pool     *ants.Pool
	main     *Thread

	mu      sync.Mutex
	threads []*Thread

	nextThreadID atomic.Uint64
	nextTimerID  atomic.Int64
	closed       atomic.Bool
}

// Option configures an Application.
type Option func(*Application)

// WithLogger replaces the logger built from the configuration.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Application) {
		a.log = l
	}
}

// WithRegistry makes the application share an existing type registry.
func WithRegistry(r *Registry) Option {
	return func(a *Application) {
		a.registry = r
	}
}

// NewApplication creates an application from cfg, or from DefaultConfig if
// cfg is nil. The goroutine calling Exec becomes the main thread.
func NewApplication(cfg *Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	a := &Application{
		cfg: cfg,
		log: NewLogger(os.Stderr, cfg.level(), cfg.LogFormat),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry = NewRegistry()
	}
	a.warner = newWarner(a.log, cfg.WarnRate)

	pool, err := ants.NewPool(cfg.MaxThreads,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			a.log.Error().Interface("panic", p).Msg("thread terminated by panic")
		}))
	if err != nil {
		return nil, fmt.Errorf("qcore: create thread pool: %w", err)
	}
	a.pool = pool
	a.main = newThread(a, "main", a.nextThreadID.Add(1), true)
	return a, nil
}

func (a *Application) Config() *Config        { return a.cfg }
func (a *Application) Logger() zerolog.Logger { return a.log }
func (a *Application) Registry() *Registry    { return a.registry }
func (a *Application) MainThread() *Thread    { return a.main }

// Init initializes obj, which becomes usable as an object. It lives in the
// thread of parent if one is given, and in the main thread otherwise.
// Initializing an object twice has no effect.
func (a *Application) Init(obj AnyObject, parent AnyObject) error {
	t := a.main
	if pd := dataOf(parent); pd != nil {
		t = pd.thread.Load()
	}
	return initObject(a, obj, t, parent)
}

// NewThread creates a thread. It does not run until started.
func (a *Application) NewThread(name string) *Thread {
	t := newThread(a, name, a.nextThreadID.Add(1), false)
	a.mu.Lock()
	a.threads = append(a.threads, t)
	a.mu.Unlock()
	return t
}

// Exec runs the main thread's event loop in the calling goroutine until Exit
// is called, and returns the exit code.
func (a *Application) Exec() int {
	if a.closed.Load() {
		return -1
	}
	a.main.running.Store(true)
	defer a.main.running.Store(false)
	return a.main.Exec()
}

// Exit makes Exec return code.
func (a *Application) Exit(code int) { a.main.Exit(code) }

// Quit is Exit(0).
func (a *Application) Quit() { a.main.Exit(0) }

// ProcessEvents processes pending events of the main thread. It must be
// called from the goroutine acting as the main thread.
func (a *Application) ProcessEvents(flags ProcessEventsFlags) bool {
	return a.main.ProcessEvents(flags)
}

// Close stops all started threads, waits for them to finish or for ctx, and
// releases the worker pool. Deferred deletions pending on the main thread
// are delivered.
func (a *Application) Close(ctx context.Context) error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	a.mu.Lock()
	threads := append([]*Thread(nil), a.threads...)
	a.mu.Unlock()

	var g errgroup.Group
	for _, t := range threads {
		if !t.started.Load() {
			continue
		}
		t.Quit()
		g.Go(func() error {
			return t.Wait(ctx)
		})
	}
	err := g.Wait()
	a.main.Exit(0)
	a.main.sendPostedEvents(nil, EventDeferredDelete, AllEvents, time.Time{})

	timeout := time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if perr := a.pool.ReleaseTimeout(timeout); perr != nil && err == nil {
		err = fmt.Errorf("qcore: release thread pool: %w", perr)
	}
	return err
}
