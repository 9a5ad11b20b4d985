package entity

import "time"

const (
	SessionStatusNotPaid        int32 = 1
	SessionStatusPaid           int32 = 2
	SessionStatusFailed         int32 = 3
	SessionStatusInquiryProblem int32 = 4
)

const (
	SessionTypeWebBased   int32 = 1
	SessionTypeCartToCart int32 = 2
)

type TransactionSession struct {
	ID uint64

	OrderID   string
	Authority string
	PSP       string

	CallbackToken string

	Amount int64

	TrackingCode *string
	Description  *string
	Note         *string

	Status int32
	Type   int32

	CardPan     *string
	CardHash    *string
	PayerMobile *string
	IP          string

	VerifyClaimedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func SessionStatusName(status int32) string {
	switch status {
	case SessionStatusNotPaid:
		return "NOT_PAID"
	case SessionStatusPaid:
		return "PAID"
	case SessionStatusFailed:
		return "FAILED"
	case SessionStatusInquiryProblem:
		return "INQUIRY_PROBLEM"
	default:
		return "UNKNOWN"
	}
}
