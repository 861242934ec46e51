package notify

import (
	"context"

	"github.com/webmon/webmon/internal/domain"
)

// Notifier delivers a failed check result to an external receiver.
type Notifier interface {
	Send(ctx context.Context, r domain.CheckResult) error
}

// Multi fans a result out to several notifiers, returning the first
// failure after trying them all.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, r domain.CheckResult) error {
	var firstErr error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
