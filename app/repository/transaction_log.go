package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-transactions/app/entity"
)

const logColumns = `id, session_id, bank_driver, status, outcome, request, response,
			response_code, description, ip, tracking_code, card_pan, card_hash, created_at`

// TransactionLogRepository only ever inserts; log rows are never updated.
type TransactionLogRepository struct {
	db DBTX
}

func NewTransactionLogRepository(db DBTX) *TransactionLogRepository {
	return &TransactionLogRepository{db: db}
}

func (r *TransactionLogRepository) Create(ctx context.Context, log *entity.TransactionLog) error {
	query := `
		INSERT INTO transaction_logs (
			session_id, bank_driver, status, outcome, request, response,
			response_code, description, ip, tracking_code, card_pan, card_hash, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		log.SessionID,
		log.BankDriver,
		log.Status,
		log.Outcome,
		log.Request,
		log.Response,
		nullableStringValue(log.ResponseCode),
		nullableStringValue(log.Description),
		log.IP,
		nullableStringValue(log.TrackingCode),
		nullableStringValue(log.CardPan),
		nullableStringValue(log.CardHash),
		log.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	log.ID = uint64(id)

	return nil
}

func (r *TransactionLogRepository) ListBySessionID(ctx context.Context, sessionID uint64) ([]*entity.TransactionLog, error) {
	query := `SELECT ` + logColumns + ` FROM transaction_logs WHERE session_id = ? ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]*entity.TransactionLog, 0)
	for rows.Next() {
		item := &entity.TransactionLog{}
		if err := scanLog(rows, item); err != nil {
			return nil, err
		}
		logs = append(logs, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}

// LatestBySessionAndTag returns the newest log with the given tag written at or
// after since, or nil when there is none.
func (r *TransactionLogRepository) LatestBySessionAndTag(ctx context.Context, sessionID uint64, tag string, since time.Time) (*entity.TransactionLog, error) {
	query := `SELECT ` + logColumns + `
		FROM transaction_logs
		WHERE session_id = ? AND status = ? AND created_at >= ?
		ORDER BY id DESC
		LIMIT 1
	`

	log := &entity.TransactionLog{}
	if err := scanLog(r.db.QueryRowContext(ctx, query, sessionID, tag, since), log); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return log, nil
}

func scanLog(scan rowScanner, log *entity.TransactionLog) error {
	var responseCode sql.NullString
	var description sql.NullString
	var trackingCode sql.NullString
	var cardPan sql.NullString
	var cardHash sql.NullString

	err := scan.Scan(
		&log.ID,
		&log.SessionID,
		&log.BankDriver,
		&log.Status,
		&log.Outcome,
		&log.Request,
		&log.Response,
		&responseCode,
		&description,
		&log.IP,
		&trackingCode,
		&cardPan,
		&cardHash,
		&log.CreatedAt,
	)
	if err != nil {
		return err
	}

	log.ResponseCode = stringPtrFromNull(responseCode)
	log.Description = stringPtrFromNull(description)
	log.TrackingCode = stringPtrFromNull(trackingCode)
	log.CardPan = stringPtrFromNull(cardPan)
	log.CardHash = stringPtrFromNull(cardHash)
	return nil
}
