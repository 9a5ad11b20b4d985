package entity

import "time"

const (
	LogTagPaymentRequest = "PAYMENT_REQUEST"
	LogTagPaymentVerify  = "PAYMENT_VERIFY"
	LogTagPaymentInquiry = "PAYMENT_INQUIRY"
	LogTagUnknown        = "UNKNOWN"
)

// Outcome of the gateway interaction a log row records.
const (
	LogOutcomeUnknown      int32 = 0
	LogOutcomeSuccess      int32 = 1
	LogOutcomeFailure      int32 = 2
	LogOutcomeAdapterError int32 = 3
)

// TransactionLog is write-once.
type TransactionLog struct {
	ID uint64

	SessionID  uint64
	BankDriver string

	Status  string
	Outcome int32

	Request  string
	Response string

	ResponseCode *string
	Description  *string
	IP           string

	// Gateway details of a successful PAYMENT_VERIFY, kept so the session can
	// be rebuilt from the log.
	TrackingCode *string
	CardPan      *string
	CardHash     *string

	CreatedAt time.Time
}
