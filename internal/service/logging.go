package service

import (
	"context"

	"chatrelay/internal/privacy"

	"github.com/sirupsen/logrus"
)

type verboseKey struct{}

// WithVerbose marks ctx so service logs carry identities, emails and message
// text unmasked.
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, verboseKey{}, verbose)
}

func IsVerboseLogging(ctx context.Context) bool {
	verbose, _ := ctx.Value(verboseKey{}).(bool)
	return verbose
}

// LogWithContext returns an entry carrying fields, masked unless ctx is
// verbose.
func LogWithContext(ctx context.Context, logger *logrus.Logger, fields logrus.Fields) *logrus.Entry {
	if !IsVerboseLogging(ctx) {
		fields = privacy.MaskSensitiveFields(fields)
	}
	return logger.WithContext(ctx).WithFields(fields)
}
