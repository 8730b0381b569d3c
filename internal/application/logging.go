package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Mostafa-DE/gatherly-sub002/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrConflict):
		return "conflict"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}

// logOutcome writes the completion record of a service operation. Expected
// domain refusals are logged at info, anything else at error.
func logOutcome(ctx context.Context, logger *slog.Logger, err error, attrs ...any) {
	if err == nil {
		logger.InfoContext(ctx, "operation completed", attrs...)
		return
	}
	kind := ErrorKind(err)
	attrs = append(attrs, "error_kind", kind, "error", err)
	if kind == "unexpected" {
		logger.ErrorContext(ctx, "operation failed", attrs...)
		return
	}
	logger.InfoContext(ctx, "operation rejected", attrs...)
}
