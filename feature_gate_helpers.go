package auth

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-featuregate/gate/guard"
)

// FeatureWaitlist redirects an entire path family to the waitlist
// destination while a soft-launch is in progress.
const FeatureWaitlist = "platform.waitlist"

func normalizeFeatureGateError(err error) error {
	if err == nil {
		return nil
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return err
	}

	return errors.Wrap(err, errors.CategoryAuthz, "Feature gate check failed").
		WithCode(errors.CodeForbidden)
}

func requireFeatureGate(ctx context.Context, featureGate gate.FeatureGate, key string, disabledErr error) error {
	if featureGate == nil {
		return nil
	}
	return guard.Require(ctx, featureGate, key,
		guard.WithDisabledError(disabledErr),
		guard.WithErrorMapper(normalizeFeatureGateError),
	)
}

// featureEnabled reports a flag state, treating a missing gate or a
// resolver failure as disabled so routing overrides fail open.
func featureEnabled(ctx context.Context, featureGate gate.FeatureGate, key string) bool {
	if featureGate == nil {
		return false
	}
	enabled, err := featureGate.Enabled(ctx, key)
	if err != nil {
		return false
	}
	return enabled
}
