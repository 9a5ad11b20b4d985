package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-transactions/app/entity"
)

var (
	ErrInquiryNotFound = errors.New("transaction inquiry not found")
	// ErrInquiryAlreadyOpen means the session already has a WAITING or PROCESSING inquiry.
	ErrInquiryAlreadyOpen = errors.New("transaction inquiry already open for session")
)

const inquiryColumns = `i.id, i.session_id, i.status, i.attempts, i.claimed_at, i.created_at, i.updated_at`

type TransactionInquiryRepository struct {
	db TxBeginner
}

func NewTransactionInquiryRepository(db TxBeginner) *TransactionInquiryRepository {
	return &TransactionInquiryRepository{db: db}
}

func (r *TransactionInquiryRepository) FindByID(ctx context.Context, id uint64) (*entity.TransactionInquiry, error) {
	query := `SELECT ` + inquiryColumns + ` FROM transaction_inquiries i WHERE i.id = ?`

	inquiry := &entity.TransactionInquiry{}
	if err := scanInquiry(r.db.QueryRowContext(ctx, query, id), inquiry); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return inquiry, nil
}

func (r *TransactionInquiryRepository) ListBySessionID(ctx context.Context, sessionID uint64) ([]*entity.TransactionInquiry, error) {
	query := `SELECT ` + inquiryColumns + ` FROM transaction_inquiries i WHERE i.session_id = ? ORDER BY i.id ASC`
	return r.list(ctx, query, sessionID)
}

// ListWaiting returns WAITING inquiries whose session belongs to one of psps.
func (r *TransactionInquiryRepository) ListWaiting(ctx context.Context, psps []string, limit int32) ([]*entity.TransactionInquiry, error) {
	if len(psps) == 0 {
		return []*entity.TransactionInquiry{}, nil
	}

	query := `SELECT ` + inquiryColumns + `
		FROM transaction_inquiries i
		INNER JOIN transaction_sessions s ON s.id = i.session_id
		WHERE i.status = ?
		  AND s.psp IN (` + placeholders(len(psps)) + `)
		ORDER BY i.id ASC
		LIMIT ?
	`

	args := make([]interface{}, 0, len(psps)+2)
	args = append(args, entity.InquiryStatusWaiting)
	for _, psp := range psps {
		args = append(args, psp)
	}
	args = append(args, limit)

	return r.list(ctx, query, args...)
}

// Claim moves a WAITING inquiry to PROCESSING and counts the attempt.
func (r *TransactionInquiryRepository) Claim(ctx context.Context, id uint64, now time.Time) (bool, error) {
	query := `
		UPDATE transaction_inquiries
		SET status = ?, attempts = attempts + 1, claimed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		entity.InquiryStatusProcessing, now, now, id, entity.InquiryStatusWaiting,
	)
	if err != nil {
		return false, err
	}
	return rowsAffected(result)
}

// Resolve sets the terminal status of a claimed inquiry.
func (r *TransactionInquiryRepository) Resolve(ctx context.Context, id uint64, status int32, now time.Time) (bool, error) {
	return resolveInquiry(ctx, r.db, id, status, now)
}

// ResolveAndFlag resolves a claimed inquiry and, in the same database
// transaction, moves its session to session.Status if the stored status still
// equals expectedStatus. flagged reports whether the session row changed;
// nothing is written when the inquiry claim was lost.
func (r *TransactionInquiryRepository) ResolveAndFlag(
	ctx context.Context,
	id uint64,
	status int32,
	now time.Time,
	session *entity.TransactionSession,
	expectedStatus int32,
) (resolved bool, flagged bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, false, err
	}
	defer func() {
		if err != nil || !resolved {
			_ = tx.Rollback()
		}
	}()

	resolved, err = resolveInquiry(ctx, tx, id, status, now)
	if err != nil || !resolved {
		return false, false, err
	}

	query := `
		UPDATE transaction_sessions
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := tx.ExecContext(ctx, query, session.Status, session.UpdatedAt, session.ID, expectedStatus)
	if err != nil {
		return false, false, err
	}
	flagged, err = rowsAffected(result)
	if err != nil {
		return false, false, err
	}

	if err = tx.Commit(); err != nil {
		return false, false, err
	}
	return true, flagged, nil
}

func resolveInquiry(ctx context.Context, db DBTX, id uint64, status int32, now time.Time) (bool, error) {
	query := `
		UPDATE transaction_inquiries
		SET status = ?, claimed_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := db.ExecContext(ctx, query, status, now, id, entity.InquiryStatusProcessing)
	if err != nil {
		return false, err
	}
	return rowsAffected(result)
}

// Release returns a claimed inquiry to WAITING.
func (r *TransactionInquiryRepository) Release(ctx context.Context, id uint64, now time.Time) (bool, error) {
	query := `
		UPDATE transaction_inquiries
		SET status = ?, claimed_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query, entity.InquiryStatusWaiting, now, id, entity.InquiryStatusProcessing)
	if err != nil {
		return false, err
	}
	return rowsAffected(result)
}

func (r *TransactionInquiryRepository) ListStaleClaims(ctx context.Context, before time.Time, limit int32) ([]*entity.TransactionInquiry, error) {
	query := `SELECT ` + inquiryColumns + `
		FROM transaction_inquiries i
		WHERE i.status = ?
		  AND i.claimed_at IS NOT NULL
		  AND i.claimed_at <= ?
		ORDER BY i.claimed_at ASC
		LIMIT ?
	`
	return r.list(ctx, query, entity.InquiryStatusProcessing, before, limit)
}

func (r *TransactionInquiryRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.TransactionInquiry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	inquiries := make([]*entity.TransactionInquiry, 0)
	for rows.Next() {
		item := &entity.TransactionInquiry{}
		if err := scanInquiry(rows, item); err != nil {
			return nil, err
		}
		inquiries = append(inquiries, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return inquiries, nil
}

func insertInquiry(ctx context.Context, db DBTX, inquiry *entity.TransactionInquiry) error {
	query := `
		INSERT INTO transaction_inquiries (
			session_id, status, attempts, claimed_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := db.ExecContext(ctx, query,
		inquiry.SessionID,
		inquiry.Status,
		inquiry.Attempts,
		nullableTimeValue(inquiry.ClaimedAt),
		inquiry.CreatedAt,
		inquiry.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrInquiryAlreadyOpen
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	inquiry.ID = uint64(id)
	return nil
}

func scanInquiry(scan rowScanner, inquiry *entity.TransactionInquiry) error {
	var claimedAt sql.NullTime

	err := scan.Scan(
		&inquiry.ID,
		&inquiry.SessionID,
		&inquiry.Status,
		&inquiry.Attempts,
		&claimedAt,
		&inquiry.CreatedAt,
		&inquiry.UpdatedAt,
	)
	if err != nil {
		return err
	}

	inquiry.ClaimedAt = timePtrFromNull(claimedAt)
	return nil
}
