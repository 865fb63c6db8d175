package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultActivityTimeout = 60 * time.Second

// RuntimeOption configures a Runtime at construction.
type RuntimeOption func(*Runtime)

// WithRetryPolicy overrides the default activity retry policy.
func WithRetryPolicy(p RetryPolicy) RuntimeOption {
	return func(r *Runtime) { r.retry = p }
}

// WithActivityTimeout sets the per-attempt activity timeout.
func WithActivityTimeout(d time.Duration) RuntimeOption {
	return func(r *Runtime) { r.timeout = d }
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(r *Runtime) { r.logger = logger }
}

// WithPreservedJournals keeps journals after clean session completion
// instead of removing them.
func WithPreservedJournals() RuntimeOption {
	return func(r *Runtime) { r.preserve = true }
}

// Runtime hosts durable sessions over one journal Store. Activities are
// registered once at startup and shared, read-only, across all sessions.
type Runtime struct {
	store    Store
	retry    RetryPolicy
	timeout  time.Duration
	logger   *slog.Logger
	preserve bool

	baseCtx context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	activities map[string]ActivityFunc
	sessions   map[string]*session
	wg         sync.WaitGroup
}

// NewRuntime creates a Runtime over the given journal store.
func NewRuntime(store Store, opts ...RuntimeOption) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())

	r := &Runtime{
		store:      store,
		retry:      DefaultRetryPolicy(),
		timeout:    defaultActivityTimeout,
		logger:     slog.Default(),
		baseCtx:    ctx,
		cancel:     cancel,
		activities: make(map[string]ActivityFunc),
		sessions:   make(map[string]*session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterActivity binds a named activity implementation. All registration
// happens before the first session starts.
func (r *Runtime) RegisterActivity(name string, fn ActivityFunc) error {
	if name == "" {
		return fmt.Errorf("activity name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.activities[name]; exists {
		return fmt.Errorf("activity already registered: %s", name)
	}
	r.activities[name] = fn
	return nil
}

// StartSession launches a workflow function under the given stable
// identifier. If the store already holds a journal for the identifier the
// function is replayed against it before running live.
func (r *Runtime) StartSession(id string, fn WorkflowFunc) error {
	records, err := r.store.Load(id)
	if err != nil {
		return fmt.Errorf("load journal for %s: %w", id, err)
	}

	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	s := newSession(r, id, records)
	r.sessions[id] = s
	r.wg.Add(1)
	r.mu.Unlock()

	go r.runSession(s, fn, len(records))
	return nil
}

func (r *Runtime) runSession(s *session, fn WorkflowFunc, journaled int) {
	defer r.wg.Done()

	r.logger.Info("session starting",
		"session", s.id,
		"journaled_records", journaled,
	)

	err := fn(r.baseCtx, s)

	s.mu.Lock()
	s.done = true
	s.err = err
	s.cond.Broadcast()
	s.mu.Unlock()

	switch {
	case err == nil:
		r.logger.Info("session completed", "session", s.id)
		if !r.preserve {
			if rmErr := r.store.Remove(s.id); rmErr != nil {
				r.logger.Warn("failed to remove journal", "session", s.id, "error", rmErr)
			}
		}
	case context.Cause(r.baseCtx) != nil:
		// Shutdown interrupted the session; the journal stays for recovery
		// and the entry stays addressable until the process exits.
		r.logger.Info("session suspended for shutdown", "session", s.id)
		return
	default:
		r.logger.Error("session failed", "session", s.id, "error", err)
	}

	// A terminated session is dropped from the runtime so its journal state
	// becomes collectable and the identifier can be started again.
	r.mu.Lock()
	delete(r.sessions, s.id)
	r.mu.Unlock()
}

// Recover relaunches every journaled session that is not already running,
// using the factory to build each workflow function. Called once at
// startup after activities are registered.
func (r *Runtime) Recover(factory func(sessionID string) WorkflowFunc) error {
	ids, err := r.store.Sessions()
	if err != nil {
		return fmt.Errorf("list journaled sessions: %w", err)
	}

	for _, id := range ids {
		r.mu.Lock()
		_, running := r.sessions[id]
		r.mu.Unlock()
		if running {
			continue
		}
		if err := r.StartSession(id, factory(id)); err != nil {
			return fmt.Errorf("recover session %s: %w", id, err)
		}
	}
	return nil
}

// Signal delivers a named signal to a session. The payload is journaled
// before the session observes it; delivery to the workflow happens at its
// next suspension point. Returns ErrSessionDone once the workflow function
// has returned.
func (r *Runtime) Signal(id, name string, payload any) error {
	s, err := r.session(id)
	if err != nil {
		return err
	}
	return s.signal(name, payload)
}

// Query answers a named query against a session. Queries are synchronous,
// side-effect-free, and never block on workflow progress; they are
// answerable while a turn is mid-flight.
func (r *Runtime) Query(id, name string) (json.RawMessage, error) {
	s, err := r.session(id)
	if err != nil {
		return nil, err
	}
	return s.query(name)
}

// SessionDone reports whether the session's workflow function has returned.
func (r *Runtime) SessionDone(id string) (bool, error) {
	s, err := r.session(id)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done, nil
}

func (r *Runtime) session(id string) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Shutdown cancels all running sessions and waits for them to suspend.
// Journals of interrupted sessions are preserved for recovery.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// session is one durable workflow execution. All workflow-side methods run
// on the single workflow goroutine; signal and query entry points run on
// caller goroutines and synchronize through mu.
type session struct {
	id string
	rt *Runtime

	mu   sync.Mutex
	cond *sync.Cond

	// replay holds the journal as loaded at start; cursor walks it. Once
	// cursor reaches the end the session is live and only pending grows.
	replay  []Record
	cursor  int
	nextSeq int
	pending []Record

	signals map[string]SignalHandler
	queries map[string]QueryHandler

	done bool
	err  error
}

func newSession(rt *Runtime, id string, records []Record) *session {
	s := &session{
		id:      id,
		rt:      rt,
		replay:  records,
		nextSeq: len(records),
		signals: make(map[string]SignalHandler),
		queries: make(map[string]QueryHandler),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *session) SessionID() string { return s.id }

func (s *session) SetSignalHandler(name string, handler SignalHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[name] = handler
}

func (s *session) SetQueryHandler(name string, handler QueryHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[name] = handler
}

func (s *session) signal(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal signal %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return fmt.Errorf("%w: %s", ErrSessionDone, s.id)
	}

	rec := Record{Seq: s.nextSeq, Kind: RecordSignal, Name: name, Payload: data}
	if err := s.rt.store.Append(s.id, rec); err != nil {
		return fmt.Errorf("journal signal %s: %w", name, err)
	}
	s.nextSeq++
	s.pending = append(s.pending, rec)
	s.cond.Broadcast()
	return nil
}

func (s *session) query(name string) (json.RawMessage, error) {
	s.mu.Lock()
	handler := s.queries[name]
	s.mu.Unlock()

	if handler == nil {
		return nil, fmt.Errorf("%w: %s", ErrQueryNotFound, name)
	}

	value, err := handler()
	if err != nil {
		return nil, err
	}
	return json.Marshal(value)
}

// replayingLocked reports whether journal records remain to be consumed.
func (s *session) replayingLocked() bool {
	return s.cursor < len(s.replay)
}

// deliverLocked invokes handlers for every signal due at this suspension
// point: journaled signals at the cursor first, then, only once the
// journal is exhausted, live signals in arrival order. Delivering only
// here, on the workflow goroutine, is what keeps replay equivalent to the
// original execution.
func (s *session) deliverLocked() {
	for s.cursor < len(s.replay) && s.replay[s.cursor].Kind == RecordSignal {
		rec := s.replay[s.cursor]
		s.cursor++
		s.invokeSignalLocked(rec)
	}

	if s.replayingLocked() {
		return
	}
	for len(s.pending) > 0 {
		rec := s.pending[0]
		s.pending = s.pending[1:]
		s.invokeSignalLocked(rec)
	}
}

func (s *session) invokeSignalLocked(rec Record) {
	handler := s.signals[rec.Name]
	if handler == nil {
		s.rt.logger.Warn("signal has no handler", "session", s.id, "signal", rec.Name)
		return
	}
	handler(rec.Payload)
}

// Await suspends the workflow until the predicate becomes true, delivering
// pending signals before each evaluation.
func (s *session) Await(ctx context.Context, predicate func() bool) error {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		s.deliverLocked()
		if predicate() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.replayingLocked() {
			// The journal proceeds with an activity while the predicate is
			// false; the original execution cannot have waited here.
			return fmt.Errorf("%w: journal has activity %q at an await point",
				ErrNonDeterministic, s.replay[s.cursor].Name)
		}
		s.cond.Wait()
	}
}

// ExecuteActivity replays a journaled result when one exists, otherwise
// runs the activity live under the retry policy and journals the outcome.
func (s *session) ExecuteActivity(ctx context.Context, name string, input, output any) error {
	s.mu.Lock()
	s.deliverLocked()

	if s.replayingLocked() {
		rec := s.replay[s.cursor]
		if rec.Kind != RecordActivity || rec.Name != name {
			s.mu.Unlock()
			return fmt.Errorf("%w: expected activity %q, journal has %s %q",
				ErrNonDeterministic, name, rec.Kind, rec.Name)
		}
		s.cursor++
		s.mu.Unlock()

		if rec.Failed {
			return &ActivityError{Activity: name, Reason: rec.Error}
		}
		return decodeResult(name, rec.Payload, output)
	}
	s.mu.Unlock()

	r := s.rt
	r.mu.Lock()
	fn := r.activities[name]
	r.mu.Unlock()
	if fn == nil {
		return fmt.Errorf("%w: %s", ErrActivityNotFound, name)
	}

	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal input of %s: %w", name, err)
	}

	result, execErr := s.execute(ctx, name, fn, data)
	if execErr != nil && ctx.Err() != nil {
		// Cancellation is not journaled; recovery re-executes the call.
		return execErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{Seq: s.nextSeq, Kind: RecordActivity, Name: name}
	if execErr != nil {
		rec.Failed = true
		rec.Error = execErr.Error()
	} else {
		rec.Payload = result
	}
	if err := s.rt.store.Append(s.id, rec); err != nil {
		return fmt.Errorf("journal activity %s: %w", name, err)
	}
	s.nextSeq++

	// Signals journaled while the activity ran are due before this call
	// returns, matching where a replay would deliver them.
	s.deliverLocked()

	if execErr != nil {
		return &ActivityError{Activity: name, Reason: execErr.Error()}
	}
	return decodeResult(name, rec.Payload, output)
}

// execute runs one live activity under the retry policy.
func (s *session) execute(ctx context.Context, name string, fn ActivityFunc, input json.RawMessage) (json.RawMessage, error) {
	r := s.rt
	attempts := r.retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		actx := ctx
		cancel := context.CancelFunc(func() {})
		if r.timeout > 0 {
			actx, cancel = context.WithTimeout(ctx, r.timeout)
		}
		result, err := fn(actx, input)
		cancel()

		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < attempts {
			r.logger.Warn("activity failed, retrying",
				"session", s.id,
				"activity", name,
				"attempt", attempt,
				"error", err,
			)
			select {
			case <-time.After(r.retry.Backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func decodeResult(name string, payload json.RawMessage, output any) error {
	if output == nil {
		return nil
	}
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	if err := json.Unmarshal(payload, output); err != nil {
		return fmt.Errorf("decode result of %s: %w", name, err)
	}
	return nil
}
