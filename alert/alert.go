package alert

import (
	"context"

	"github.com/oddbit-project/chargebridge/audit"
)

// Notifier pushes security events to an external channel. Implementations
// must tolerate being called from the relay hot path; failures are reported
// to the caller but must not block message forwarding.
type Notifier interface {
	Notify(ctx context.Context, ev audit.Event) error
	Close() error
}

// NopNotifier discards all alerts
type NopNotifier struct{}

func (NopNotifier) Notify(_ context.Context, _ audit.Event) error {
	return nil
}

func (NopNotifier) Close() error {
	return nil
}
