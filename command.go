package ferret

import (
	"context"
	"fmt"
)

// Command is a request to change an aggregate.
type Command struct {
	// Type is the command type tag (e.g., "increment").
	Type string

	// Properties is the command payload.
	Properties Properties
}

// NewCommand creates a Command. props is copied.
func NewCommand(cmdType string, props Properties) Command {
	return Command{Type: cmdType, Properties: props.Clone()}
}

// Locator derives the target aggregate's identity from a command.
type Locator func(cmd Command) (AggregateID, error)

// KeyLocator returns a Locator reading aggType's identifying keys from the
// command properties.
func KeyLocator(aggType *AggregateType) Locator {
	return func(cmd Command) (AggregateID, error) {
		return aggType.ID(cmd.Properties)
	}
}

// Handler decides a command against the latest aggregate. It returns
// Accept with the aggregate after applying new events, or Reject.
// Handlers must not perform I/O.
type Handler func(agg *Aggregate, cmd Command) Decision

// Decision is the outcome of a Handler.
type Decision struct {
	aggregate *Aggregate
	reason    string
	rejected  bool
}

// Accept returns a decision to commit agg.
func Accept(agg *Aggregate) Decision {
	return Decision{aggregate: agg}
}

// Reject returns a decision refusing the command for reason.
func Reject(reason string) Decision {
	return Decision{reason: reason, rejected: true}
}

// Rejectf returns a decision refusing the command with a formatted reason.
func Rejectf(format string, args ...interface{}) Decision {
	return Reject(fmt.Sprintf(format, args...))
}

// IsRejected reports whether the command was refused.
func (d Decision) IsRejected() bool {
	return d.rejected
}

// Reason returns the rejection reason.
func (d Decision) Reason() string {
	return d.reason
}

// Aggregate returns the accepted aggregate.
func (d Decision) Aggregate() *Aggregate {
	return d.aggregate
}

// CommandType declares one command: its tag, how to find its aggregate and
// how to decide it.
type CommandType struct {
	name    string
	locator Locator
	handler Handler
}

// NewCommandType declares a command type. It panics on an empty name or a
// nil locator or handler.
func NewCommandType(name string, locator Locator, handler Handler) *CommandType {
	if name == "" {
		panic("ferret: command type tag is required")
	}
	if locator == nil || handler == nil {
		panic(fmt.Sprintf("ferret: command type %q needs a locator and a handler", name))
	}
	return &CommandType{name: name, locator: locator, handler: handler}
}

// Name returns the command type tag.
func (c *CommandType) Name() string {
	return c.name
}

// Message builds a command of this type.
func (c *CommandType) Message(props Properties) Command {
	return NewCommand(c.name, props)
}

// Locate returns the identity of the aggregate cmd targets.
func (c *CommandType) Locate(cmd Command) (AggregateID, error) {
	return c.locator(cmd)
}

// Handle runs the command's handler.
func (c *CommandType) Handle(agg *Aggregate, cmd Command) Decision {
	return c.handler(agg, cmd)
}

// Transact runs a command of this type built from props.
func (c *CommandType) Transact(ctx context.Context, repo *Repository, props Properties) (Result, error) {
	return Transact(ctx, repo, c, c.Message(props))
}

// Transact executes cmd: it locates and fetches the target aggregate, runs
// the handler, and commits the accepted aggregate.
//
// A rejection returns Rejected with the fetched aggregate and writes nothing.
// A lost race returns Conflict; Transact never retries.
func Transact(ctx context.Context, repo *Repository, ct *CommandType, cmd Command) (Result, error) {
	if cmd.Type == "" {
		cmd.Type = ct.name
	}
	if cmd.Type != ct.name {
		return Result{}, NewValidationError(ct.name, "type", fmt.Sprintf("command of type %q", cmd.Type))
	}

	id, err := ct.Locate(cmd)
	if err != nil {
		return Result{}, err
	}

	fetched, err := repo.FetchLatest(ctx, id)
	if err != nil {
		return Result{}, err
	}

	decision := ct.Handle(fetched, cmd)
	if decision.IsRejected() {
		return Rejected(decision.Reason(), fetched), nil
	}

	accepted := decision.Aggregate()
	if accepted == nil {
		return Result{}, fmt.Errorf("%w: %q accepted no aggregate", ErrInvalidDecision, ct.name)
	}
	if !accepted.valid() || !accepted.ID().Equal(fetched.ID()) || accepted.Version() != fetched.Version() {
		return Result{}, fmt.Errorf("%w: %q accepted an aggregate that was not derived from %s",
			ErrInvalidAggregate, ct.name, fetched.StreamID())
	}

	return repo.Commit(ctx, accepted)
}
