package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-transactions/app/entity"
)

var (
	ErrSessionNotFound      = errors.New("transaction session not found")
	ErrSessionAlreadyExists = errors.New("transaction session already exists")
	// ErrStaleSession is returned when a conditional status update finds the
	// session in a different status than expected.
	ErrStaleSession = errors.New("transaction session status changed concurrently")
)

const sessionColumns = `id, order_id, authority, psp, callback_token, amount,
			tracking_code, description, note, status, type,
			card_pan, card_hash, payer_mobile, ip, verify_claimed_at,
			created_at, updated_at`

type SessionFilter struct {
	OrderID   string
	PSP       string
	HasStatus bool
	Status    int32
	Limit     int32
	Offset    int32
}

type TransactionSessionRepository struct {
	db TxBeginner
}

func NewTransactionSessionRepository(db TxBeginner) *TransactionSessionRepository {
	return &TransactionSessionRepository{db: db}
}

func (r *TransactionSessionRepository) Create(ctx context.Context, session *entity.TransactionSession) error {
	query := `
		INSERT INTO transaction_sessions (
			order_id, authority, psp, callback_token, amount,
			tracking_code, description, note, status, type,
			card_pan, card_hash, payer_mobile, ip,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		session.OrderID,
		session.Authority,
		session.PSP,
		session.CallbackToken,
		session.Amount,
		nullableStringValue(session.TrackingCode),
		nullableStringValue(session.Description),
		nullableStringValue(session.Note),
		session.Status,
		session.Type,
		nullableStringValue(session.CardPan),
		nullableStringValue(session.CardHash),
		nullableStringValue(session.PayerMobile),
		session.IP,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrSessionAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	session.ID = uint64(id)
	return nil
}

func (r *TransactionSessionRepository) FindByID(ctx context.Context, id uint64) (*entity.TransactionSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM transaction_sessions WHERE id = ?`
	return r.findOne(ctx, query, id)
}

func (r *TransactionSessionRepository) FindByAuthority(ctx context.Context, psp, authority string) (*entity.TransactionSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM transaction_sessions WHERE psp = ? AND authority = ? LIMIT 1`
	return r.findOne(ctx, query, psp, authority)
}

func (r *TransactionSessionRepository) FindByCallbackToken(ctx context.Context, psp, token string) (*entity.TransactionSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM transaction_sessions WHERE psp = ? AND callback_token = ? LIMIT 1`
	return r.findOne(ctx, query, psp, token)
}

func (r *TransactionSessionRepository) ListByOrderID(ctx context.Context, orderID string) ([]*entity.TransactionSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM transaction_sessions WHERE order_id = ? ORDER BY id DESC`
	return r.list(ctx, query, orderID)
}

func (r *TransactionSessionRepository) List(ctx context.Context, filter SessionFilter) ([]*entity.TransactionSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM transaction_sessions`

	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)

	if strings.TrimSpace(filter.OrderID) != "" {
		conditions = append(conditions, "order_id = ?")
		args = append(args, filter.OrderID)
	}
	if strings.TrimSpace(filter.PSP) != "" {
		conditions = append(conditions, "psp = ?")
		args = append(args, filter.PSP)
	}
	if filter.HasStatus {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	return r.list(ctx, query, args...)
}

// ClaimVerification marks a NOT_PAID session as being verified. A claim
// older than staleBefore is considered abandoned and may be taken over.
func (r *TransactionSessionRepository) ClaimVerification(ctx context.Context, id uint64, now, staleBefore time.Time) (bool, error) {
	query := `
		UPDATE transaction_sessions
		SET verify_claimed_at = ?
		WHERE id = ?
		  AND status = ?
		  AND (verify_claimed_at IS NULL OR verify_claimed_at <= ?)
	`

	result, err := r.db.ExecContext(ctx, query, now, id, entity.SessionStatusNotPaid, staleBefore)
	if err != nil {
		return false, err
	}
	return rowsAffected(result)
}

func (r *TransactionSessionRepository) ReleaseVerificationClaim(ctx context.Context, id uint64) error {
	query := `
		UPDATE transaction_sessions
		SET verify_claimed_at = NULL
		WHERE id = ? AND status = ?
	`

	_, err := r.db.ExecContext(ctx, query, id, entity.SessionStatusNotPaid)
	return err
}

// CommitTransition writes the session's new status and gateway details only if
// the stored status still equals expectedStatus. When inquiry is not nil it is
// inserted in the same database transaction.
func (r *TransactionSessionRepository) CommitTransition(
	ctx context.Context,
	session *entity.TransactionSession,
	expectedStatus int32,
	inquiry *entity.TransactionInquiry,
) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		UPDATE transaction_sessions SET
			status = ?,
			tracking_code = ?,
			card_pan = ?,
			card_hash = ?,
			verify_claimed_at = NULL,
			updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := tx.ExecContext(ctx, query,
		session.Status,
		nullableStringValue(session.TrackingCode),
		nullableStringValue(session.CardPan),
		nullableStringValue(session.CardHash),
		session.UpdatedAt,
		session.ID,
		expectedStatus,
	)
	if err != nil {
		return err
	}

	updated, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if !updated {
		return ErrStaleSession
	}

	if inquiry != nil {
		inquiry.SessionID = session.ID
		if err = insertInquiry(ctx, tx, inquiry); err != nil {
			return fmt.Errorf("insert inquiry: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	session.VerifyClaimedAt = nil
	return nil
}

func (r *TransactionSessionRepository) UpdateNote(ctx context.Context, id uint64, note *string, now time.Time) error {
	query := `UPDATE transaction_sessions SET note = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, nullableStringValue(note), now, id)
	if err != nil {
		return err
	}

	updated, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if !updated {
		return ErrSessionNotFound
	}
	return nil
}

func (r *TransactionSessionRepository) ListStaleVerifyClaims(ctx context.Context, before time.Time, limit int32) ([]*entity.TransactionSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM transaction_sessions
		WHERE status = ?
		  AND verify_claimed_at IS NOT NULL
		  AND verify_claimed_at <= ?
		ORDER BY verify_claimed_at ASC
		LIMIT ?
	`
	return r.list(ctx, query, entity.SessionStatusNotPaid, before, limit)
}

func (r *TransactionSessionRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.TransactionSession, error) {
	session := &entity.TransactionSession{}
	if err := scanSession(r.db.QueryRowContext(ctx, query, args...), session); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *TransactionSessionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.TransactionSession, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]*entity.TransactionSession, 0)
	for rows.Next() {
		item := &entity.TransactionSession{}
		if err := scanSession(rows, item); err != nil {
			return nil, err
		}
		sessions = append(sessions, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

func scanSession(scan rowScanner, session *entity.TransactionSession) error {
	var trackingCode sql.NullString
	var description sql.NullString
	var note sql.NullString
	var cardPan sql.NullString
	var cardHash sql.NullString
	var payerMobile sql.NullString
	var verifyClaimedAt sql.NullTime

	err := scan.Scan(
		&session.ID,
		&session.OrderID,
		&session.Authority,
		&session.PSP,
		&session.CallbackToken,
		&session.Amount,
		&trackingCode,
		&description,
		&note,
		&session.Status,
		&session.Type,
		&cardPan,
		&cardHash,
		&payerMobile,
		&session.IP,
		&verifyClaimedAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return err
	}

	session.TrackingCode = stringPtrFromNull(trackingCode)
	session.Description = stringPtrFromNull(description)
	session.Note = stringPtrFromNull(note)
	session.CardPan = stringPtrFromNull(cardPan)
	session.CardHash = stringPtrFromNull(cardHash)
	session.PayerMobile = stringPtrFromNull(payerMobile)
	session.VerifyClaimedAt = timePtrFromNull(verifyClaimedAt)

	return nil
}
