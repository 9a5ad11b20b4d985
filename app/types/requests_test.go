package types

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-transactions/app/entity"
	"github.com/vibast-solutions/ms-go-transactions/app/gate"
)

func TestNewInitiateTransactionRequestFromContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/transactions", bytes.NewBufferString(`{"order_id":" 42 ","amount":1000,"gate":"REST","payer":{"mobile":"09120000000","email":" "}}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderXRealIP, "10.1.1.1")
	ctx := e.NewContext(req, httptest.NewRecorder())

	parsed, err := NewInitiateTransactionRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.GetOrderId() != "42" || parsed.GetGate() != "rest" {
		t.Fatalf("unexpected normalization: %+v", parsed)
	}
	if parsed.Ip != "10.1.1.1" {
		t.Fatalf("expected real ip, got %q", parsed.Ip)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	identity := parsed.PayerIdentity()
	if identity.Get(gate.IdentityMobile) != "09120000000" {
		t.Fatalf("expected mobile identity, got %v", identity)
	}
	if _, ok := identity[gate.IdentityEmail]; ok {
		t.Fatal("expected blank email to be dropped")
	}
}

func TestInitiateTransactionValidate(t *testing.T) {
	cases := []struct {
		name string
		req  *InitiateTransactionRequest
		ok   bool
	}{
		{name: "missing order", req: &InitiateTransactionRequest{Amount: 1, Gate: "rest"}},
		{name: "negative amount", req: &InitiateTransactionRequest{OrderId: "1", Amount: -1, Gate: "rest"}},
		{name: "missing gate", req: &InitiateTransactionRequest{OrderId: "1", Amount: 1}},
		{name: "bad type", req: &InitiateTransactionRequest{OrderId: "1", Amount: 1, Gate: "rest", Type: 7}},
		{name: "unknown payer field", req: &InitiateTransactionRequest{OrderId: "1", Amount: 1, Gate: "rest", Payer: map[string]string{"nickname": "x"}}},
		{name: "amount from order lookup", req: &InitiateTransactionRequest{OrderId: "1", Gate: "rest"}, ok: true},
		{name: "cart to cart", req: &InitiateTransactionRequest{OrderId: "1", Amount: 1, Gate: "rest", Type: entity.SessionTypeCartToCart}, ok: true},
	}

	for _, tc := range cases {
		err := tc.req.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: expected valid request, got %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestNewVerifyTransactionRequestFromFormPost(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/callbacks/rest/tok-1", strings.NewReader("authority=AUTH-1&status=OK"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set(GatewaySignatureHeader, "t=1,v1=abc")
	ctx := e.NewContext(req, httptest.NewRecorder())
	ctx.SetParamNames("gate", "token")
	ctx.SetParamValues("REST", "tok-1")

	parsed, err := NewVerifyTransactionRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.GetGate() != "rest" || parsed.GetToken() != "tok-1" || parsed.GetAuthority() != "AUTH-1" {
		t.Fatalf("unexpected parse: %+v", parsed)
	}
	if parsed.Data["status"] != "OK" {
		t.Fatalf("expected status in data, got %v", parsed.Data)
	}
	if parsed.Payload != "authority=AUTH-1&status=OK" || parsed.Signature != "t=1,v1=abc" {
		t.Fatalf("expected raw payload and signature, got %+v", parsed)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestNewVerifyTransactionRequestFromJSONAndQuery(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/callbacks/rest/tok-1?status=NOK", strings.NewReader(`{"authority":"AUTH-2","status":"OK","ref":12}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ctx := e.NewContext(req, httptest.NewRecorder())
	ctx.SetParamNames("gate", "token")
	ctx.SetParamValues("rest", "tok-1")

	parsed, err := NewVerifyTransactionRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.Data["status"] != "OK" || parsed.Data["ref"] != "12" || parsed.GetAuthority() != "AUTH-2" {
		t.Fatalf("expected body to win over query, got %v", parsed.Data)
	}

	get := httptest.NewRequest("GET", "/callbacks/rest/tok-1?authority=AUTH-3&status=OK", nil)
	ctx = e.NewContext(get, httptest.NewRecorder())
	ctx.SetParamNames("gate", "token")
	ctx.SetParamValues("rest", "tok-1")

	parsed, err = NewVerifyTransactionRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.Payload != "authority=AUTH-3&status=OK" || parsed.GetAuthority() != "AUTH-3" {
		t.Fatalf("expected query payload, got %+v", parsed)
	}
}

func TestVerifyTransactionValidate(t *testing.T) {
	if err := (&VerifyTransactionRequest{Gate: "rest"}).Validate(); err == nil {
		t.Fatal("expected token or authority validation error")
	}
	if err := (&VerifyTransactionRequest{Token: "tok"}).Validate(); err == nil {
		t.Fatal("expected gate validation error")
	}
	if err := (&VerifyTransactionRequest{Gate: "rest", Authority: "A"}).Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestNewListSessionsRequestFromContextAndValidate(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/transactions?order_id=42&gate=REST&status=paid&limit=20&offset=3", nil)
	ctx := e.NewContext(req, httptest.NewRecorder())

	parsed, err := NewListSessionsRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !parsed.GetHasStatus() || parsed.GetStatus() != entity.SessionStatusPaid {
		t.Fatalf("unexpected status parse: %+v", parsed)
	}
	if parsed.GetGate() != "rest" || parsed.GetLimit() != 20 || parsed.GetOffset() != 3 {
		t.Fatalf("unexpected parse: %+v", parsed)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid list request, got %v", err)
	}
}

func TestListSessionsValidate(t *testing.T) {
	req := &ListSessionsRequest{}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected default limit to validate, got %v", err)
	}
	if req.GetLimit() != 100 {
		t.Fatalf("expected default limit 100, got %d", req.GetLimit())
	}

	req = &ListSessionsRequest{Limit: 501}
	if err := req.Validate(); err == nil {
		t.Fatal("expected limit validation error")
	}

	req = &ListSessionsRequest{HasStatus: true, Status: 9}
	if err := req.Validate(); err == nil {
		t.Fatal("expected status validation error")
	}

	if _, err := ParseSessionStatus("bogus"); err == nil {
		t.Fatal("expected status parse error")
	}
	if status, err := ParseSessionStatus("INQUIRY_PROBLEM"); err != nil || status != entity.SessionStatusInquiryProblem {
		t.Fatalf("expected INQUIRY_PROBLEM, got %d %v", status, err)
	}
}

func TestNewUpdateNoteRequestFromContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("PATCH", "/transactions/5/note", bytes.NewBufferString(`{"note":"  called payer  "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ctx := e.NewContext(req, httptest.NewRecorder())
	ctx.SetParamNames("id")
	ctx.SetParamValues("5")

	parsed, err := NewUpdateNoteRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.GetId() != 5 || parsed.GetNote() != "called payer" {
		t.Fatalf("unexpected parse: %+v", parsed)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	long := &UpdateNoteRequest{Id: 5, Note: strings.Repeat("x", maxNoteLength+1)}
	if err := long.Validate(); err == nil {
		t.Fatal("expected note length validation error")
	}
}
