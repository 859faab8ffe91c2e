// Package notify pushes capture alerts to external sinks.
package notify

import (
	"context"
)

// Notifier delivers a short alert message.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// MultiNotifier fans an alert out to several notifiers. Delivery stops at the
// first failing sink and its error is returned.
type MultiNotifier struct {
	notifiers []Notifier
}

func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

func (m *MultiNotifier) Send(ctx context.Context, title, body string) error {
	for _, n := range m.notifiers {
		if err := n.Send(ctx, title, body); err != nil {
			return err
		}
	}
	return nil
}

// NoOpNotifier swallows alerts; used when no webhook is configured.
type NoOpNotifier struct{}

func (n *NoOpNotifier) Send(ctx context.Context, title, body string) error {
	return nil
}
