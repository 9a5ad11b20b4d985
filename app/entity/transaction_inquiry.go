package entity

import "time"

const (
	InquiryStatusWaiting    int32 = 1
	InquiryStatusProcessing int32 = 2
	InquiryStatusSuccess    int32 = 10
	InquiryStatusFailed     int32 = 20
)

type TransactionInquiry struct {
	ID uint64

	SessionID uint64

	Status    int32
	Attempts  int32
	ClaimedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func InquiryStatusName(status int32) string {
	switch status {
	case InquiryStatusWaiting:
		return "WAITING"
	case InquiryStatusProcessing:
		return "PROCESSING"
	case InquiryStatusSuccess:
		return "SUCCESS"
	case InquiryStatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
