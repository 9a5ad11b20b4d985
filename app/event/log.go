package event

import (
	"context"

	"github.com/sirupsen/logrus"
)

type LogSink struct {
	logger logrus.FieldLogger
}

func NewLogSink(logger logrus.FieldLogger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, evt Event) error {
	s.logger.WithFields(logrus.Fields{
		"event":      evt.Type,
		"session_id": evt.SessionID,
		"order_id":   evt.OrderID,
		"psp":        evt.PSP,
		"status":     evt.Status,
		"inquiry_id": evt.InquiryID,
	}).Info("Transaction event")
	return nil
}
