package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-transactions/app/entity"
	"github.com/vibast-solutions/ms-go-transactions/app/gate"
)

const (
	// GatewaySignatureHeader carries the gateway's callback signature.
	GatewaySignatureHeader = "X-Gateway-Signature"

	maxNoteLength        = 1000
	maxDescriptionLength = 255
	maxCallbackBody      = 64 << 10
)

func NewInitiateTransactionRequestFromContext(ctx echo.Context) (*InitiateTransactionRequest, error) {
	var body InitiateTransactionRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.OrderId = strings.TrimSpace(body.OrderId)
	body.Gate = strings.ToLower(strings.TrimSpace(body.Gate))
	body.Description = strings.TrimSpace(body.Description)
	body.Ip = ctx.RealIP()

	return &body, nil
}

func (r *InitiateTransactionRequest) Validate() error {
	if strings.TrimSpace(r.GetOrderId()) == "" {
		return errors.New("order_id is required")
	}
	if r.GetAmount() < 0 {
		return errors.New("amount must be >= 0")
	}
	if strings.TrimSpace(r.GetGate()) == "" {
		return errors.New("gate is required")
	}
	if r.GetType() != 0 && r.GetType() != entity.SessionTypeWebBased && r.GetType() != entity.SessionTypeCartToCart {
		return errors.New("type must be 1 (web based) or 2 (cart to cart)")
	}
	if len(r.Description) > maxDescriptionLength {
		return fmt.Errorf("description must be at most %d characters", maxDescriptionLength)
	}
	for field := range r.Payer {
		if !isKnownIdentityField(gate.IdentityField(field)) {
			return fmt.Errorf("payer field %q is not supported", field)
		}
	}
	return nil
}

// PayerIdentity converts the payer document into the gate identity map.
func (r *InitiateTransactionRequest) PayerIdentity() gate.Identity {
	if r == nil || len(r.Payer) == 0 {
		return nil
	}
	identity := make(gate.Identity, len(r.Payer))
	for field, value := range r.Payer {
		if value = strings.TrimSpace(value); value != "" {
			identity[gate.IdentityField(field)] = value
		}
	}
	return identity
}

// NewVerifyTransactionRequestFromContext reads a bank callback. Banks post
// either a form or JSON, or redirect the payer back with query parameters; all
// of them end up in Data. The exact bytes received are kept in Payload for
// signature checks.
func NewVerifyTransactionRequestFromContext(ctx echo.Context) (*VerifyTransactionRequest, error) {
	httpReq := ctx.Request()
	req := &VerifyTransactionRequest{
		Gate:      strings.ToLower(strings.TrimSpace(ctx.Param("gate"))),
		Token:     strings.TrimSpace(ctx.Param("token")),
		Data:      map[string]string{},
		Signature: strings.TrimSpace(httpReq.Header.Get(GatewaySignatureHeader)),
		Ip:        ctx.RealIP(),
	}

	for key, values := range httpReq.URL.Query() {
		if len(values) > 0 {
			req.Data[key] = values[0]
		}
	}

	if httpReq.Method == http.MethodGet {
		req.Payload = httpReq.URL.RawQuery
	} else if httpReq.Body != nil {
		rawBody, err := io.ReadAll(io.LimitReader(httpReq.Body, maxCallbackBody))
		if err != nil {
			return nil, err
		}
		req.Payload = string(rawBody)
		if err := mergeCallbackBody(req.Data, httpReq.Header.Get(echo.HeaderContentType), rawBody); err != nil {
			return nil, err
		}
	}

	req.Authority = strings.TrimSpace(req.Data["authority"])
	return req, nil
}

func mergeCallbackBody(data map[string]string, contentType string, rawBody []byte) error {
	if len(rawBody) == 0 {
		return nil
	}

	if strings.HasPrefix(contentType, echo.MIMEApplicationJSON) {
		var body map[string]interface{}
		if err := json.Unmarshal(rawBody, &body); err != nil {
			return err
		}
		for key, value := range body {
			switch v := value.(type) {
			case nil:
			case string:
				data[key] = v
			case float64:
				data[key] = strconv.FormatFloat(v, 'f', -1, 64)
			default:
				data[key] = fmt.Sprint(v)
			}
		}
		return nil
	}

	values, err := url.ParseQuery(string(rawBody))
	if err != nil {
		return err
	}
	for key, v := range values {
		if len(v) > 0 {
			data[key] = v[0]
		}
	}
	return nil
}

func (r *VerifyTransactionRequest) Validate() error {
	if strings.TrimSpace(r.GetGate()) == "" {
		return errors.New("gate is required")
	}
	if strings.TrimSpace(r.GetToken()) == "" && strings.TrimSpace(r.GetAuthority()) == "" {
		return errors.New("callback token or authority is required")
	}
	return nil
}

func NewGetSessionRequestFromContext(ctx echo.Context) (*GetSessionRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &GetSessionRequest{Id: id}, nil
}

func (r *GetSessionRequest) Validate() error {
	if r.GetId() == 0 {
		return errors.New("invalid transaction id")
	}
	return nil
}

func NewListSessionsRequestFromContext(ctx echo.Context) (*ListSessionsRequest, error) {
	req := &ListSessionsRequest{
		OrderId: strings.TrimSpace(ctx.QueryParam("order_id")),
		Gate:    strings.ToLower(strings.TrimSpace(ctx.QueryParam("gate"))),
		Limit:   100,
		Offset:  0,
	}

	if statusRaw := strings.TrimSpace(ctx.QueryParam("status")); statusRaw != "" {
		status, err := ParseSessionStatus(statusRaw)
		if err != nil {
			return nil, err
		}
		req.HasStatus = true
		req.Status = status
	}

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}

	if offsetRaw := strings.TrimSpace(ctx.QueryParam("offset")); offsetRaw != "" {
		offset, err := strconv.ParseInt(offsetRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Offset = int32(offset)
	}

	return req, nil
}

func (r *ListSessionsRequest) Validate() error {
	if r.Limit == 0 {
		r.Limit = 100
	}
	if r.GetLimit() <= 0 || r.GetLimit() > 500 {
		return errors.New("limit must be between 1 and 500")
	}
	if r.GetOffset() < 0 {
		return errors.New("offset must be >= 0")
	}
	if r.GetHasStatus() && entity.SessionStatusName(r.GetStatus()) == "UNKNOWN" {
		return errors.New("invalid status")
	}
	return nil
}

// ParseSessionStatus accepts a numeric status or its name, e.g. "2" or "paid".
func ParseSessionStatus(raw string) (int32, error) {
	raw = strings.TrimSpace(raw)
	if status, err := strconv.ParseInt(raw, 10, 32); err == nil {
		return int32(status), nil
	}
	for _, status := range []int32{
		entity.SessionStatusNotPaid,
		entity.SessionStatusPaid,
		entity.SessionStatusFailed,
		entity.SessionStatusInquiryProblem,
	} {
		if strings.EqualFold(raw, entity.SessionStatusName(status)) {
			return status, nil
		}
	}
	return 0, fmt.Errorf("invalid status %q", raw)
}

func NewUpdateNoteRequestFromContext(ctx echo.Context) (*UpdateNoteRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}

	var body UpdateNoteRequest
	if err = ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.Id = id
	body.Note = strings.TrimSpace(body.Note)

	return &body, nil
}

func (r *UpdateNoteRequest) Validate() error {
	if r.GetId() == 0 {
		return errors.New("invalid transaction id")
	}
	if len(r.GetNote()) > maxNoteLength {
		return fmt.Errorf("note must be at most %d characters", maxNoteLength)
	}
	return nil
}

func NewProcessInquiryRequestFromContext(ctx echo.Context) (*ProcessInquiryRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &ProcessInquiryRequest{Id: id}, nil
}

func (r *ProcessInquiryRequest) Validate() error {
	if r.GetId() == 0 {
		return errors.New("invalid inquiry id")
	}
	return nil
}

func isKnownIdentityField(field gate.IdentityField) bool {
	switch field {
	case gate.IdentityMobile, gate.IdentityEmail, gate.IdentityNationalCode, gate.IdentityUserID:
		return true
	default:
		return false
	}
}
