package coroutine

import (
	"errors"

	"go.uber.org/zap"
)

// State is the lifecycle state of a Coroutine.
type State int

const (
	StateNew State = iota
	StateRunning
	StateSuspended
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateFinished:
		return "finished"
	}
	return "unknown"
}

var (
	// ErrSuspend is the suspend signal. A body returns an error matching it
	// (errors.Is) to park the coroutine.
	ErrSuspend = errors.New("coroutine suspended")

	// ErrFinished is returned when running a finished coroutine.
	ErrFinished = errors.New("coroutine is finished")

	// ErrRunning is returned when a running coroutine is run again.
	ErrRunning = errors.New("coroutine is already running")

	// ErrNotInstrumented is raised when yield is reached through code that
	// was not rewritten.
	ErrNotInstrumented = errors.New("calling method not instrumented or yield called with the wrong owner")
)

// Body runs the coroutine's code against the ambient stack.
type Body func() error

// Ambient is the execution context holding the frame stack instrumented
// code sees.
type Ambient interface {
	Stack() *Stack
	SetStack(*Stack)
}

// Option configures a Coroutine.
type Option func(*Coroutine)

// WithStackSize sets the initial number of method records.
func WithStackSize(n int) Option {
	return func(c *Coroutine) {
		c.stack = NewStack(n)
		c.stack.co = c
	}
}

// WithName labels the coroutine in log output.
func WithName(name string) Option {
	return func(c *Coroutine) {
		c.name = name
	}
}

// Coroutine runs a Body that can suspend itself and be resumed later from
// the point it suspended at.
type Coroutine struct {
	body  Body
	stack *Stack
	name  string
	state State
}

// New creates a coroutine in StateNew.
func New(body Body, opts ...Option) *Coroutine {
	c := &Coroutine{body: body}
	for _, opt := range opts {
		opt(c)
	}
	if c.stack == nil {
		c.stack = NewStack(DefaultStackSize)
		c.stack.co = c
	}
	return c
}

// Active returns the coroutine owning amb's current stack, or nil.
func Active(amb Ambient) *Coroutine {
	if s := amb.Stack(); s != nil {
		return s.co
	}
	return nil
}

// State returns the current state.
func (c *Coroutine) State() State {
	return c.state
}

// Stack returns the coroutine's frame stack.
func (c *Coroutine) Stack() *Stack {
	return c.stack
}

// Run starts or resumes the coroutine on amb and blocks until it
// suspends or finishes. The previous ambient stack is restored on every
// exit path.
func (c *Coroutine) Run(amb Ambient) error {
	switch c.state {
	case StateRunning:
		return ErrRunning
	case StateFinished:
		return ErrFinished
	}

	prev := amb.Stack()
	result := StateFinished
	c.state = StateRunning
	amb.SetStack(c.stack)
	defer func() {
		amb.SetStack(prev)
		c.state = result
		Logger().Debug("coroutine left",
			zap.String("name", c.name),
			zap.Stringer("state", result))
	}()

	err := c.body()
	if errors.Is(err, ErrSuspend) {
		result = StateSuspended
		c.stack.ResumeStack()
		return nil
	}
	return err
}
