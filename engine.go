package ferret

import (
	"context"
	"sort"
	"sync"
)

// TransactFunc executes one command.
type TransactFunc func(ctx context.Context, cmd Command) (Result, error)

// Middleware wraps a TransactFunc with additional functionality.
type Middleware func(next TransactFunc) TransactFunc

// ChainMiddleware creates a single middleware from multiple middleware.
func ChainMiddleware(middleware ...Middleware) Middleware {
	return func(next TransactFunc) TransactFunc {
		for i := len(middleware) - 1; i >= 0; i-- {
			next = middleware[i](next)
		}
		return next
	}
}

// Engine routes commands to their command types and runs them through a
// middleware pipeline around Transact.
type Engine struct {
	repo       *Repository
	commands   map[string]*CommandType
	middleware []Middleware
	logger     Logger
	mu         sync.RWMutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMiddleware adds middleware to the engine.
func WithMiddleware(middleware ...Middleware) EngineOption {
	return func(e *Engine) {
		e.middleware = append(e.middleware, middleware...)
	}
}

// WithEngineLogger sets the logger used by the engine.
func WithEngineLogger(l Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an Engine committing through repo.
func NewEngine(repo *Repository, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:     repo,
		commands: make(map[string]*CommandType),
		logger:   noopLogger{},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Register adds command types to the engine, replacing any with the same tag.
func (e *Engine) Register(commands ...*CommandType) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, c := range commands {
		if c == nil {
			panic("ferret: nil command type")
		}
		e.commands[c.name] = c
		e.logger.Debug("Registered command type", "type", c.name)
	}
}

// Use adds middleware to the engine.
// Middleware is executed in the order it was added.
func (e *Engine) Use(middleware ...Middleware) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.middleware = append(e.middleware, middleware...)
}

// Transact sends a command through the middleware pipeline and executes it.
func (e *Engine) Transact(ctx context.Context, cmd Command) (Result, error) {
	e.mu.RLock()
	ct := e.commands[cmd.Type]
	middleware := make([]Middleware, len(e.middleware))
	copy(middleware, e.middleware)
	e.mu.RUnlock()

	if ct == nil {
		return Result{}, NewHandlerNotFoundError(cmd.Type)
	}

	final := func(ctx context.Context, cmd Command) (Result, error) {
		return Transact(ctx, e.repo, ct, cmd)
	}

	return ChainMiddleware(middleware...)(final)(ctx, cmd)
}

// Repository returns the engine's repository.
func (e *Engine) Repository() *Repository {
	return e.repo
}

// HasCommand reports whether a command type is registered for cmdType.
func (e *Engine) HasCommand(cmdType string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.commands[cmdType]
	return ok
}

// CommandTypes returns the registered command type tags in sorted order.
func (e *Engine) CommandTypes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.commands))
	for n := range e.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MiddlewareCount returns the number of middleware in the pipeline.
func (e *Engine) MiddlewareCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.middleware)
}
