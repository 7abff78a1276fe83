package errors

import (
	"github.com/sirupsen/logrus"
)

// Entry returns a log entry carrying err and, for AppErrors, their code,
// retryability and context.
func Entry(logger logrus.FieldLogger, err error) *logrus.Entry {
	entry := logger.WithError(err)

	if appErr, ok := As(err); ok {
		entry = entry.WithFields(logrus.Fields{
			"error_code": appErr.Code,
			"retryable":  appErr.Retryable,
		})
		for k, v := range appErr.Context {
			if k == "password" || k == "token" || k == "secret" {
				continue
			}
			entry = entry.WithField(k, v)
		}
	}

	return entry
}

// Log writes err at a level matching its severity: client mistakes at info,
// retryable failures at warn, the rest at error.
func Log(logger logrus.FieldLogger, err error, message string, fields ...logrus.Fields) {
	entry := Entry(logger, err)
	for _, f := range fields {
		entry = entry.WithFields(f)
	}

	switch {
	case HTTPStatusCode(err) < 500:
		entry.Info(message)
	case IsRetryable(err):
		entry.Warn(message)
	default:
		entry.Error(message)
	}
}
