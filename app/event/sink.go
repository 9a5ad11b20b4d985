package event

import (
	"context"
	"errors"
	"time"
)

type Type string

const (
	BeforePaymentRequest Type = "BEFORE_PAYMENT_REQUEST"
	AfterPaymentVerify   Type = "AFTER_PAYMENT_VERIFY"
	BeforePaymentInquiry Type = "BEFORE_PAYMENT_INQUIRY"
)

type Event struct {
	Type          Type      `json:"type"`
	SessionID     uint64    `json:"session_id"`
	OrderID       string    `json:"order_id"`
	PSP           string    `json:"psp"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	TrackingCode  string    `json:"tracking_code,omitempty"`
	InquiryID     uint64    `json:"inquiry_id,omitempty"`
	InquiryStatus string    `json:"inquiry_status,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Sink delivers lifecycle events to the surrounding application. Delivery
// failures never roll back a committed transition.
type Sink interface {
	Publish(ctx context.Context, evt Event) error
}

type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }

// MultiSink publishes to every sink and joins their errors.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	items := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			items = append(items, s)
		}
	}
	return &MultiSink{sinks: items}
}

func (m *MultiSink) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
