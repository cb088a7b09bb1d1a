package util

import (
	"context"
	"strings"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// LoggerContextKey is the context key under which request-scoped loggers are
// stored. Kept as a plain string for compatibility with handlers that attach
// the logger via context.WithValue(ctx, "logger", ...).
const LoggerContextKey = "logger"

// Error is a helper log func that will log an error to NewRelic and to a
// zap logger. All fields can be nil.
//
// Examples:
//
// Error(nil, nil, "foo", nil) -- will return errors.New("foo")
// Error(txn, nil, "foo", nil) -- will notice error on txn
// Error(txn, logger, "foo", errors.New("bar")) -- will log "Foo: bar" to logger and NR + return errors.Wrap(err, "foo")
// Error(nil, nil, "", nil) -- will return nil
func Error(txn *newrelic.Transaction, log *zap.Logger, msg string, err error, fields ...zap.Field) error {
	if err == nil && msg == "" {
		// Nothing to do if neither error or msg is present
		return nil
	} else if err != nil && msg != "" {
		// If both err and msg are present, wrap err with msg
		err = errors.Wrap(err, msg)
	} else if err == nil && msg != "" {
		// If only msg is present, use msg for err
		err = errors.New(msg)
	} else if err != nil && msg == "" {
		// If err is provided but no msg, leave err as-is
	}

	if txn != nil {
		txn.NoticeError(err)
	}

	if log != nil {
		log.Error(CapitalizeFirstChar(err.Error()), fields...)
	}

	return err
}

func CapitalizeFirstChar(s string) string {
	if len(s) == 0 {
		return s
	}

	return strings.ToUpper(string(s[0])) + s[1:]
}

// MethodSetup is a helper function that will attempt to extract a NewRelic
// txn and a logger from a provided context. It is used partly to reduce
// boilerplate setup code in all methods but most importantly, it ensures that
// every method has access to a logger that contains common log fields like
// the routing key or system URL a request arrived with.
//
// If the context doesn't contain a txn, the NewRelic lib will continue to be
// able to handle calls on nil transactions.
//
// If the context does not contain a logger, the fallback logger is used. If
// no fallback logger is provided either, a no-op logger is returned.
func MethodSetup(ctx context.Context, fallbackLogger *zap.Logger, fields ...zap.Field) (*newrelic.Transaction, *zap.Logger) {
	if ctx == nil {
		if fallbackLogger == nil {
			return nil, zap.NewNop().With(fields...)
		}

		return nil, fallbackLogger.With(fields...)
	}

	// If the context carries no txn, returned txn will be a nil
	// *Transaction and the NewRelic lib is able to handle calls on nil
	// transactions.
	txn := newrelic.FromContext(ctx)

	// Context is non-nil, check if it has a logger
	logger, ok := ctx.Value(LoggerContextKey).(*zap.Logger)
	if !ok {
		if fallbackLogger != nil {
			logger = fallbackLogger
		} else {
			logger = zap.NewNop()
		}
	}

	return txn, logger.With(fields...)
}
