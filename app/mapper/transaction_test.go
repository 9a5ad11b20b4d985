package mapper

import (
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-transactions/app/entity"
	"github.com/vibast-solutions/ms-go-transactions/app/gate"
)

func TestSessionToProto(t *testing.T) {
	tracking := "T1"
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	item := &entity.TransactionSession{
		ID:           7,
		OrderID:      "42",
		Authority:    "AUTH-1",
		PSP:          "rest",
		Amount:       1000,
		TrackingCode: &tracking,
		Status:       entity.SessionStatusPaid,
		Type:         entity.SessionTypeWebBased,
		CreatedAt:    created,
		UpdatedAt:    created,
	}

	got := SessionToProto(item)
	if got.Id != 7 || got.Gate != "rest" || got.TrackingCode != "T1" {
		t.Fatalf("unexpected mapping: %+v", got)
	}
	if got.StatusName != "PAID" {
		t.Fatalf("expected status name PAID, got %q", got.StatusName)
	}
	if got.CreatedAt != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected created_at %q", got.CreatedAt)
	}
	if got.Note != "" || got.CardPan != "" {
		t.Fatalf("expected empty optional fields, got %+v", got)
	}
	if SessionToProto(nil) != nil {
		t.Fatal("expected nil for nil session")
	}
}

func TestLogAndInquiryToProto(t *testing.T) {
	code := "100"
	logs := LogsToProto([]*entity.TransactionLog{{ID: 1, SessionID: 7, Status: entity.LogTagPaymentVerify, Outcome: entity.LogOutcomeSuccess, ResponseCode: &code}})
	if len(logs) != 1 || logs[0].ResponseCode != "100" || logs[0].Status != "PAYMENT_VERIFY" {
		t.Fatalf("unexpected log mapping: %+v", logs)
	}

	inquiries := InquiriesToProto([]*entity.TransactionInquiry{{ID: 3, SessionID: 7, Status: entity.InquiryStatusWaiting}})
	if len(inquiries) != 1 || inquiries[0].StatusName != "WAITING" {
		t.Fatalf("unexpected inquiry mapping: %+v", inquiries)
	}
	if inquiries[0].CreatedAt != "" {
		t.Fatalf("expected empty time for zero value, got %q", inquiries[0].CreatedAt)
	}
}

func TestRedirectToProtoCopiesInputs(t *testing.T) {
	src := gate.Redirect{Action: "https://bank/pay", Method: "POST", Inputs: map[string]string{"RefId": "A"}}
	got := RedirectToProto(src)
	src.Inputs["RefId"] = "B"
	if got.Inputs["RefId"] != "A" || got.Method != "POST" {
		t.Fatalf("unexpected redirect mapping: %+v", got)
	}
}

func TestLogToProtoCarriesTrackingCode(t *testing.T) {
	tracking := "T1"
	item := &entity.TransactionLog{
		ID:           9,
		SessionID:    7,
		Status:       entity.LogTagPaymentVerify,
		Outcome:      entity.LogOutcomeSuccess,
		TrackingCode: &tracking,
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	got := LogToProto(item)
	if got.TrackingCode != "T1" || got.Status != entity.LogTagPaymentVerify {
		t.Fatalf("unexpected mapping: %+v", got)
	}
	if got.ResponseCode != "" {
		t.Fatalf("expected empty response code, got %q", got.ResponseCode)
	}
}
