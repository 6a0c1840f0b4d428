package ferret

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// RecoveryMiddleware recovers from panics in handlers and reducers and
// returns them as a *PanicError.
func RecoveryMiddleware() Middleware {
	return func(next TransactFunc) TransactFunc {
		return func(ctx context.Context, cmd Command) (result Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					result = Result{}
					err = NewPanicError(cmd.Type, r, string(debug.Stack()))
				}
			}()
			return next(ctx, cmd)
		}
	}
}

// LoggingMiddleware logs command execution.
type LoggingMiddleware struct {
	logger Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// Middleware returns the middleware function.
func (m *LoggingMiddleware) Middleware() Middleware {
	return func(next TransactFunc) TransactFunc {
		return func(ctx context.Context, cmd Command) (Result, error) {
			start := time.Now()

			m.logger.Debug("Transacting command", "type", cmd.Type)

			result, err := next(ctx, cmd)

			duration := time.Since(start)

			switch {
			case err != nil:
				m.logger.Error("Command failed",
					"type", cmd.Type,
					"duration", duration,
					"error", err,
				)
			case result.IsConflict():
				m.logger.Warn("Command conflicted",
					"type", cmd.Type,
					"duration", duration,
					"streamId", result.Aggregate().StreamID(),
					"version", result.Version(),
				)
			case result.IsRejected():
				m.logger.Info("Command rejected",
					"type", cmd.Type,
					"duration", duration,
					"reason", result.Reason(),
				)
			default:
				m.logger.Info("Command committed",
					"type", cmd.Type,
					"duration", duration,
					"streamId", result.Aggregate().StreamID(),
					"events", len(result.Events()),
					"version", result.Version(),
				)
			}

			return result, err
		}
	}
}

// TimeoutMiddleware bounds command execution by timeout.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next TransactFunc) TransactFunc {
		return func(ctx context.Context, cmd Command) (Result, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, cmd)
		}
	}
}

// CorrelationIDMiddleware ensures every command runs with a correlation ID.
// An ID already on the context or in the command's "correlationId" property
// wins over a generated one. generator defaults to random UUIDs.
func CorrelationIDMiddleware(generator func() string) Middleware {
	if generator == nil {
		generator = uuid.NewString
	}

	return func(next TransactFunc) TransactFunc {
		return func(ctx context.Context, cmd Command) (Result, error) {
			if CorrelationIDFromContext(ctx) != "" {
				return next(ctx, cmd)
			}

			correlationID := cmd.Properties.String("correlationId")
			if correlationID == "" {
				correlationID = generator()
			}

			return next(WithCorrelationID(ctx, correlationID), cmd)
		}
	}
}

// CausationIDMiddleware stamps the events of each command with a causation
// ID: the command's "commandId" property, or a generated one.
func CausationIDMiddleware(generator func() string) Middleware {
	if generator == nil {
		generator = uuid.NewString
	}

	return func(next TransactFunc) TransactFunc {
		return func(ctx context.Context, cmd Command) (Result, error) {
			causationID := cmd.Properties.String("commandId")
			if causationID == "" {
				causationID = generator()
			}
			return next(WithCausationID(ctx, causationID), cmd)
		}
	}
}

// TenantMiddleware extracts the tenant ID of a command into the context.
// When required is set, a command without a tenant fails validation.
func TenantMiddleware(extractor func(Command) string, required bool) Middleware {
	return func(next TransactFunc) TransactFunc {
		return func(ctx context.Context, cmd Command) (Result, error) {
			if TenantIDFromContext(ctx) != "" {
				return next(ctx, cmd)
			}

			tenantID := ""
			if extractor != nil {
				tenantID = extractor(cmd)
			}

			if tenantID == "" {
				if required {
					return Result{}, NewValidationError(cmd.Type, "tenantId", "tenant ID is required")
				}
				return next(ctx, cmd)
			}

			return next(WithTenantID(ctx, tenantID), cmd)
		}
	}
}

// ConditionalMiddleware applies middleware only if the condition is true.
func ConditionalMiddleware(condition func(Command) bool, middleware Middleware) Middleware {
	return func(next TransactFunc) TransactFunc {
		wrapped := middleware(next)
		return func(ctx context.Context, cmd Command) (Result, error) {
			if condition(cmd) {
				return wrapped(ctx, cmd)
			}
			return next(ctx, cmd)
		}
	}
}

// CommandTypeMiddleware applies middleware only for specific command types.
func CommandTypeMiddleware(types []string, middleware Middleware) Middleware {
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	return ConditionalMiddleware(func(cmd Command) bool {
		return typeSet[cmd.Type]
	}, middleware)
}
