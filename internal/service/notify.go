package service

import (
	"context"
	"errors"
)

// NotificationKind tags a notification for clients that render it.
type NotificationKind string

const (
	NotifyReferral   NotificationKind = "referral"
	NotifyPurchase   NotificationKind = "purchase"
	NotifyWithdrawal NotificationKind = "withdrawal"
)

type Notification struct {
	Kind NotificationKind `json:"kind"`
	Text string           `json:"text"`
	Data map[string]any   `json:"data,omitempty"`
}

// Notifier delivers a message to a user. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, userID int64, n Notification) error
}

// MultiNotifier fans a notification out to every notifier.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, userID int64, n Notification) error {
	var errs []error
	for _, nt := range m {
		if nt == nil {
			continue
		}
		if err := nt.Notify(ctx, userID, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, int64, Notification) error { return nil }
