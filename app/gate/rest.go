package gate

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	restStatusOK      = "OK"
	restSignatureVer  = "v1"
	defaultRESTMethod = http.MethodGet
)

type RESTConfig struct {
	Code                      string
	BaseURL                   string
	MerchantID                string
	Secret                    string
	AmountUnit                AmountUnit
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

// RESTGate talks to a gateway exposing JSON request, verify and inquiry
// endpoints. Callbacks are signed with HMAC-SHA256 as "t=<unix>,v1=<hex>".
type RESTGate struct {
	cfg    RESTConfig
	client *http.Client
}

func NewRESTGate(cfg RESTConfig) *RESTGate {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.SignatureToleranceSeconds <= 0 {
		cfg.SignatureToleranceSeconds = 300
	}
	if strings.TrimSpace(cfg.Code) == "" {
		cfg.Code = "rest"
	}
	if cfg.AmountUnit == "" {
		cfg.AmountUnit = AmountUnitMinor
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return &RESTGate{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *RESTGate) Code() string {
	return g.cfg.Code
}

func (g *RESTGate) BuildPayRequest(ctx context.Context, input *PayInput) (*PayOutput, error) {
	if g.cfg.BaseURL == "" {
		return nil, errors.New("gateway base url is not configured")
	}

	amount, err := ToGatewayAmount(input.Amount, g.cfg.AmountUnit)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"merchant_id":  g.cfg.MerchantID,
		"amount":       amount,
		"order_id":     input.OrderID,
		"callback_url": input.CallbackURL,
		"description":  input.Description,
	}
	if mobile := input.Payer.Get(IdentityMobile); mobile != "" {
		body["mobile"] = mobile
	}
	if email := input.Payer.Get(IdentityEmail); email != "" {
		body["email"] = email
	}

	request, response, err := g.postJSON(ctx, "/payments/request", body)
	if err != nil {
		return nil, &RoundTripError{Op: "pay request", Request: request, Response: response, Err: err}
	}

	var payload struct {
		Status      string `json:"status"`
		Code        string `json:"code"`
		Message     string `json:"message"`
		Authority   string `json:"authority"`
		RedirectURL string `json:"redirect_url"`
	}
	if err := json.Unmarshal([]byte(response), &payload); err != nil {
		return nil, &RoundTripError{Op: "pay request", Request: request, Response: response, Err: err}
	}

	authority := strings.TrimSpace(payload.Authority)
	if payload.Status != restStatusOK || authority == "" {
		return nil, &RoundTripError{
			Op:       "pay request",
			Request:  request,
			Response: response,
			Err:      fmt.Errorf("gateway rejected pay request: code=%s message=%s", payload.Code, payload.Message),
		}
	}

	action := strings.TrimSpace(payload.RedirectURL)
	if action == "" {
		action = g.cfg.BaseURL + "/pay/" + authority
	}

	return &PayOutput{
		Authority:    authority,
		ResponseCode: payload.Code,
		Request:      request,
		Response:     response,
		Redirect: Redirect{
			Action: action,
			Method: defaultRESTMethod,
			Inputs: map[string]string{"authority": authority},
		},
	}, nil
}

func (g *RESTGate) Verify(ctx context.Context, input *VerifyInput) (*VerifyOutput, error) {
	if strings.TrimSpace(g.cfg.Secret) != "" &&
		!verifyCallbackSignature(input.RawCallback, input.Signature, g.cfg.Secret, g.cfg.SignatureToleranceSeconds) {
		return nil, &RoundTripError{
			Op:      "verify",
			Request: string(input.RawCallback),
			Err:     fmt.Errorf("%w: signature mismatch", ErrInvalidCallback),
		}
	}

	if callbackAuthority := strings.TrimSpace(input.CallbackData["authority"]); callbackAuthority != "" && callbackAuthority != input.Authority {
		return nil, &RoundTripError{
			Op:      "verify",
			Request: string(input.RawCallback),
			Err:     fmt.Errorf("%w: authority mismatch", ErrInvalidCallback),
		}
	}

	// The payer cancelled or the bank declined; there is nothing to verify.
	if status := strings.ToUpper(strings.TrimSpace(input.CallbackData["status"])); status != restStatusOK {
		if status == "" {
			status = "NOK"
		}
		return &VerifyOutput{
			Success:      false,
			ResponseCode: status,
			Description:  "payment not completed by payer",
			Request:      string(input.RawCallback),
		}, nil
	}

	amount, err := ToGatewayAmount(input.Amount, g.cfg.AmountUnit)
	if err != nil {
		return nil, err
	}

	request, response, err := g.postJSON(ctx, "/payments/verify", map[string]interface{}{
		"merchant_id": g.cfg.MerchantID,
		"authority":   input.Authority,
		"amount":      amount,
	})
	if err != nil {
		return nil, &RoundTripError{Op: "verify", Request: request, Response: response, Err: err}
	}

	var payload struct {
		Status       string           `json:"status"`
		Code         string           `json:"code"`
		Message      string           `json:"message"`
		TrackingCode string           `json:"tracking_code"`
		CardPan      string           `json:"card_pan"`
		CardHash     string           `json:"card_hash"`
		Amount       *decimal.Decimal `json:"amount"`
	}
	if err := json.Unmarshal([]byte(response), &payload); err != nil {
		return nil, &RoundTripError{Op: "verify", Request: request, Response: response, Err: err}
	}

	result := &VerifyOutput{
		Success:      payload.Status == restStatusOK,
		TrackingCode: strings.TrimSpace(payload.TrackingCode),
		CardPan:      strings.TrimSpace(payload.CardPan),
		CardHash:     strings.TrimSpace(payload.CardHash),
		ResponseCode: payload.Code,
		Description:  payload.Message,
		Request:      request,
		Response:     response,
	}
	if payload.Amount != nil {
		settled, err := FromGatewayAmount(*payload.Amount, g.cfg.AmountUnit)
		if err != nil {
			return nil, &RoundTripError{Op: "verify", Request: request, Response: response, Err: err}
		}
		result.Amount = settled
	}

	return result, nil
}

func (g *RESTGate) Inquire(ctx context.Context, input *InquiryInput) (*InquiryOutput, error) {
	if strings.TrimSpace(input.Authority) == "" {
		return nil, ErrInquiryUnsupported
	}

	request, response, err := g.postJSON(ctx, "/payments/inquiry", map[string]interface{}{
		"merchant_id":   g.cfg.MerchantID,
		"authority":     input.Authority,
		"tracking_code": input.TrackingCode,
	})
	if err != nil {
		return nil, &RoundTripError{Op: "inquiry", Request: request, Response: response, Err: err}
	}

	var payload struct {
		Status  string `json:"status"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(response), &payload); err != nil {
		return nil, &RoundTripError{Op: "inquiry", Request: request, Response: response, Err: err}
	}

	return &InquiryOutput{
		Success:      payload.Status == restStatusOK,
		ResponseCode: payload.Code,
		Description:  payload.Message,
		Request:      request,
		Response:     response,
	}, nil
}

func (g *RESTGate) postJSON(ctx context.Context, path string, body interface{}) (string, string, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return "", "", err
	}
	request := string(encoded)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return request, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.Secret != "" {
		req.Header.Set("X-Gateway-Signature", signPayload(encoded, g.cfg.Secret, time.Now().Unix()))
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return request, "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return request, "", err
	}
	response := string(raw)
	if resp.StatusCode >= 400 {
		return request, response, fmt.Errorf("gateway request failed: path=%s status=%d", path, resp.StatusCode)
	}

	return request, response, nil
}

func signPayload(payload []byte, secret string, ts int64) string {
	tsRaw := strconv.FormatInt(ts, 10)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(tsRaw + "." + string(payload)))
	return "t=" + tsRaw + "," + restSignatureVer + "=" + hex.EncodeToString(mac.Sum(nil))
}

func verifyCallbackSignature(payload []byte, signatureHeader string, secret string, toleranceSeconds int64) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(secret) == "" {
		return false
	}

	var ts string
	candidates := make([]string, 0, 1)
	for _, part := range strings.Split(signatureHeader, ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "t=") {
			ts = strings.TrimSpace(strings.TrimPrefix(part, "t="))
		}
		if strings.HasPrefix(part, restSignatureVer+"=") {
			candidates = append(candidates, strings.TrimSpace(strings.TrimPrefix(part, restSignatureVer+"=")))
		}
	}
	if ts == "" || len(candidates) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	now := time.Now().Unix()
	if now-tsUnix > toleranceSeconds || tsUnix-now > toleranceSeconds {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(ts + "." + string(payload)))
	expected := mac.Sum(nil)

	for _, sig := range candidates {
		candidate, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return true
		}
	}

	return false
}
