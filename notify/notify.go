// Package notify delivers advance warnings for upcoming maintenance work.
package notify

import (
	"context"
	"time"
)

// Notice is an advance warning that a work order is about to be generated.
type Notice struct {
	PMID    string
	PMTitle string

	// DueAt is when the upcoming work order falls due.
	DueAt time.Time

	Recipients []string
}

// Notifier delivers notices. Delivery failures are the notifier's to
// report; the scheduling layer logs them and moves on, a broken mail
// relay must never block work order generation.
type Notifier interface {
	Send(ctx context.Context, notice Notice) error
}
