package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/vibast-solutions/ms-go-transactions/app/entity"
)

func inquiryRowColumns() []string {
	return []string{"id", "session_id", "status", "attempts", "claimed_at", "created_at", "updated_at"}
}

func TestLogCreateAssignsID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionLogRepository(db)

	now := time.Now().UTC()
	code := "0"
	tracking := "T1"
	log := &entity.TransactionLog{
		SessionID:    3,
		BankDriver:   "rest",
		Status:       entity.LogTagPaymentVerify,
		Outcome:      entity.LogOutcomeSuccess,
		Request:      `{"authority":"AUTH-1"}`,
		Response:     `{"status":"OK"}`,
		ResponseCode: &code,
		IP:           "10.0.0.1",
		TrackingCode: &tracking,
		CreatedAt:    now,
	}

	mock.ExpectExec("INSERT INTO transaction_logs").
		WithArgs(uint64(3), "rest", entity.LogTagPaymentVerify, entity.LogOutcomeSuccess,
			`{"authority":"AUTH-1"}`, `{"status":"OK"}`, "0", nil, "10.0.0.1", "T1", nil, nil, now).
		WillReturnResult(sqlmock.NewResult(5, 1))

	if err := repo.Create(context.Background(), log); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if log.ID != 5 {
		t.Fatalf("expected id 5, got %d", log.ID)
	}
}

func TestLogLatestBySessionAndTagMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionLogRepository(db)

	since := time.Now().UTC().Add(-time.Minute)
	mock.ExpectQuery("FROM transaction_logs").
		WithArgs(uint64(3), entity.LogTagPaymentVerify, since).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "session_id", "bank_driver", "status", "outcome", "request", "response",
			"response_code", "description", "ip", "tracking_code", "card_pan", "card_hash", "created_at",
		}))

	log, err := repo.LatestBySessionAndTag(context.Background(), 3, entity.LogTagPaymentVerify, since)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if log != nil {
		t.Fatalf("expected no log, got %+v", log)
	}
}

func TestInquiryListWaitingWithoutGatesSkipsQuery(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionInquiryRepository(db)

	items, err := repo.ListWaiting(context.Background(), nil, 10)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no inquiries, got %d", len(items))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected query issued: %v", err)
	}
}

func TestInquiryListWaitingJoinsSessions(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionInquiryRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery("INNER JOIN transaction_sessions s ON s.id = i.session_id").
		WithArgs(entity.InquiryStatusWaiting, "rest", "mellat", int32(10)).
		WillReturnRows(sqlmock.NewRows(inquiryRowColumns()).
			AddRow(uint64(1), uint64(3), entity.InquiryStatusWaiting, int32(0), nil, now, now))

	items, err := repo.ListWaiting(context.Background(), []string{"rest", "mellat"}, 10)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(items) != 1 || items[0].SessionID != 3 || items[0].ClaimedAt != nil {
		t.Fatalf("unexpected inquiries: %+v", items)
	}
}

func TestInquiryClaimAndResolve(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionInquiryRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec("UPDATE transaction_inquiries").
		WithArgs(entity.InquiryStatusProcessing, now, now, uint64(1), entity.InquiryStatusWaiting).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE transaction_inquiries").
		WithArgs(entity.InquiryStatusSuccess, now, uint64(1), entity.InquiryStatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.Claim(context.Background(), 1, now)
	if err != nil || !claimed {
		t.Fatalf("expected claim, got claimed=%v err=%v", claimed, err)
	}
	resolved, err := repo.Resolve(context.Background(), 1, entity.InquiryStatusSuccess, now)
	if err != nil || !resolved {
		t.Fatalf("expected resolve, got resolved=%v err=%v", resolved, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInquiryReleaseLostClaim(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionInquiryRepository(db)

	mock.ExpectExec("UPDATE transaction_inquiries").
		WillReturnResult(sqlmock.NewResult(0, 0))

	released, err := repo.Release(context.Background(), 1, time.Now().UTC())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if released {
		t.Fatal("expected release to report no change")
	}
}

func TestInquiryResolveAndFlagCommitsBoth(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionInquiryRepository(db)

	now := time.Now().UTC()
	session := &entity.TransactionSession{ID: 3, Status: entity.SessionStatusInquiryProblem, UpdatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transaction_inquiries").
		WithArgs(entity.InquiryStatusFailed, now, uint64(1), entity.InquiryStatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE transaction_sessions").
		WithArgs(entity.SessionStatusInquiryProblem, now, uint64(3), entity.SessionStatusPaid).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resolved, flagged, err := repo.ResolveAndFlag(context.Background(), 1, entity.InquiryStatusFailed, now, session, entity.SessionStatusPaid)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !resolved || !flagged {
		t.Fatalf("expected resolved and flagged, got resolved=%v flagged=%v", resolved, flagged)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInquiryResolveAndFlagSessionMovedOn(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionInquiryRepository(db)

	now := time.Now().UTC()
	session := &entity.TransactionSession{ID: 3, Status: entity.SessionStatusInquiryProblem, UpdatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transaction_inquiries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE transaction_sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	resolved, flagged, err := repo.ResolveAndFlag(context.Background(), 1, entity.InquiryStatusFailed, now, session, entity.SessionStatusPaid)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !resolved || flagged {
		t.Fatalf("expected resolved without flag, got resolved=%v flagged=%v", resolved, flagged)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInquiryResolveAndFlagRollsBackOnSessionError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionInquiryRepository(db)

	now := time.Now().UTC()
	session := &entity.TransactionSession{ID: 3, Status: entity.SessionStatusInquiryProblem, UpdatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transaction_inquiries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE transaction_sessions").
		WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectRollback()

	resolved, flagged, err := repo.ResolveAndFlag(context.Background(), 1, entity.InquiryStatusFailed, now, session, entity.SessionStatusPaid)
	if err == nil {
		t.Fatal("expected error")
	}
	if resolved || flagged {
		t.Fatalf("expected nothing applied, got resolved=%v flagged=%v", resolved, flagged)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInquiryResolveAndFlagLostClaim(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionInquiryRepository(db)

	now := time.Now().UTC()
	session := &entity.TransactionSession{ID: 3, Status: entity.SessionStatusInquiryProblem, UpdatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transaction_inquiries").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	resolved, flagged, err := repo.ResolveAndFlag(context.Background(), 1, entity.InquiryStatusFailed, now, session, entity.SessionStatusPaid)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resolved || flagged {
		t.Fatalf("expected lost claim, got resolved=%v flagged=%v", resolved, flagged)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
