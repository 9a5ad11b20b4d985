package gate

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInquiryUnsupported is returned by gates that implement Inquirer but
	// cannot inquire for a particular session.
	ErrInquiryUnsupported = errors.New("gate does not support inquiry")
	ErrInvalidCallback    = errors.New("invalid gate callback")
)

type IdentityField string

const (
	IdentityMobile       IdentityField = "mobile"
	IdentityEmail        IdentityField = "email"
	IdentityNationalCode IdentityField = "national_code"
	IdentityUserID       IdentityField = "user_id"
)

// Identity carries payer details some gateways require on the pay request.
type Identity map[IdentityField]string

func (i Identity) Get(field IdentityField) string {
	if i == nil {
		return ""
	}
	return i[field]
}

// Redirect is the form the payer's browser submits to reach the gateway.
type Redirect struct {
	Action string            `json:"action"`
	Method string            `json:"method"`
	Inputs map[string]string `json:"inputs"`
}

type PayInput struct {
	OrderID       string
	Amount        int64
	CallbackURL   string
	CallbackToken string
	Description   string
	Payer         Identity
}

type PayOutput struct {
	Authority    string
	ResponseCode string
	Request      string
	Response     string
	Redirect     Redirect
}

type VerifyInput struct {
	Authority    string
	Amount       int64
	CallbackData map[string]string
	RawCallback  []byte
	Signature    string
}

type VerifyOutput struct {
	Success      bool
	TrackingCode string
	CardPan      string
	CardHash     string
	// Amount is the settled amount reported by the gateway in minor units, or 0
	// when the gateway does not report one.
	Amount       int64
	ResponseCode string
	Description  string
	Request      string
	Response     string
}

type InquiryInput struct {
	Authority    string
	TrackingCode string
	Amount       int64
}

type InquiryOutput struct {
	Success      bool
	ResponseCode string
	Description  string
	Request      string
	Response     string
}

type Gate interface {
	Code() string
	BuildPayRequest(ctx context.Context, input *PayInput) (*PayOutput, error)
	Verify(ctx context.Context, input *VerifyInput) (*VerifyOutput, error)
}

// Inquirer is implemented by gates that can re-check a verified payment.
type Inquirer interface {
	Inquire(ctx context.Context, input *InquiryInput) (*InquiryOutput, error)
}

// RoundTripError keeps the raw exchange of a failed gateway call so it can be
// written to the audit log.
type RoundTripError struct {
	Op       string
	Request  string
	Response string
	Err      error
}

func (e *RoundTripError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RoundTripError) Unwrap() error {
	return e.Err
}

// Exchange extracts the raw request and response carried by err, if any.
func Exchange(err error) (request string, response string) {
	var rtErr *RoundTripError
	if errors.As(err, &rtErr) {
		return rtErr.Request, rtErr.Response
	}
	return "", ""
}
