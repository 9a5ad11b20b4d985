package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-transactions/app/entity"
	"github.com/vibast-solutions/ms-go-transactions/app/event"
	"github.com/vibast-solutions/ms-go-transactions/app/gate"
	"github.com/vibast-solutions/ms-go-transactions/app/repository"
)

const (
	responseCodeAdapterError    = "adapter_error"
	responseCodeInvalidCallback = "invalid_callback"
	responseCodeAmountMismatch  = "amount_mismatch"
)

type VerifyInput struct {
	Gate          string
	CallbackToken string
	Authority     string
	CallbackData  map[string]string
	RawCallback   []byte
	Signature     string
	IP            string
}

// Verify settles a session from a gateway callback at most once. When the
// session is no longer NOT_PAID the stored session is returned together with
// ErrAlreadyVerified; a live claim held by another caller yields
// ErrVerificationInProgress. A gateway failure still commits FAILED and is
// reported as ErrAdapterUnavailable alongside the updated session.
func (s *TransactionService) Verify(ctx context.Context, input VerifyInput) (*entity.TransactionSession, error) {
	g, err := s.resolveGate(input.Gate)
	if err != nil {
		return nil, err
	}

	session, err := s.findCallbackSession(ctx, g.Code(), input)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(session.ID)
	defer unlock()

	// Another caller in this process may have settled it while we waited.
	session, err = s.sessionRepo.FindByID(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: reload session: %w", ErrPersistence, err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.Status != entity.SessionStatusNotPaid {
		s.metrics.ObserveVerifyRejected(session.PSP, "already_verified")
		return session, ErrAlreadyVerified
	}

	claimedAt := s.now()
	staleBefore := claimedAt.Add(-s.cfg.VerifyClaimTTL)
	if session.VerifyClaimedAt != nil {
		if session.VerifyClaimedAt.After(staleBefore) {
			s.metrics.ObserveVerifyRejected(session.PSP, "claimed")
			return session, ErrVerificationInProgress
		}
		// An abandoned claim may already have a verify log; the gateway is
		// not asked twice.
		settled, ok, err := s.settleFromVerifyLog(ctx, session)
		if err != nil || ok {
			return settled, err
		}
	}

	claimed, err := s.sessionRepo.ClaimVerification(ctx, session.ID, claimedAt, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("%w: claim verification: %w", ErrPersistence, err)
	}
	if !claimed {
		s.metrics.ObserveVerifyRejected(session.PSP, "claimed")
		return session, ErrVerificationInProgress
	}
	session.VerifyClaimedAt = &claimedAt

	gateCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	start := time.Now()
	out, gateErr := g.Verify(gateCtx, &gate.VerifyInput{
		Authority:    session.Authority,
		Amount:       session.Amount,
		CallbackData: input.CallbackData,
		RawCallback:  input.RawCallback,
		Signature:    input.Signature,
	})
	cancel()
	s.observeGatewayCall(session.PSP, "verify", gateErr == nil, start)

	// The gateway has been contacted; the audit trail must be written even if
	// the caller has gone away.
	persistCtx := context.WithoutCancel(ctx)

	log := s.verifyLog(session, input, out, gateErr)
	if err := s.logRepo.Create(persistCtx, log); err != nil {
		s.releaseVerifyClaim(persistCtx, session.ID)
		return nil, fmt.Errorf("%w: verify log: %w", ErrPersistence, err)
	}

	if gateErr != nil && errors.Is(gateErr, gate.ErrInvalidCallback) {
		s.metrics.ObserveVerifyRejected(session.PSP, "invalid_callback")
		s.releaseVerifyClaim(persistCtx, session.ID)
		return nil, fmt.Errorf("%w: %w", ErrInvalidCallback, gateErr)
	}

	updated, inquiry := s.applyVerifyOutcome(session, log)
	if err := s.commit(persistCtx, updated, entity.SessionStatusNotPaid, log.Status, inquiry); err != nil {
		return nil, err
	}

	s.publish(ctx, event.AfterPaymentVerify, updated, inquiry)

	if gateErr != nil {
		return updated, fmt.Errorf("%w: verify: %w", ErrAdapterUnavailable, gateErr)
	}
	return updated, nil
}

func (s *TransactionService) findCallbackSession(ctx context.Context, psp string, input VerifyInput) (*entity.TransactionSession, error) {
	token := strings.TrimSpace(input.CallbackToken)
	authority := strings.TrimSpace(input.Authority)

	var session *entity.TransactionSession
	var err error
	switch {
	case token != "":
		session, err = s.sessionRepo.FindByCallbackToken(ctx, psp, token)
	case authority != "":
		session, err = s.sessionRepo.FindByAuthority(ctx, psp, authority)
	default:
		return nil, fmt.Errorf("%w: callback token or authority is required", ErrInvalidRequest)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find session: %w", ErrPersistence, err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *TransactionService) verifyLog(
	session *entity.TransactionSession,
	input VerifyInput,
	out *gate.VerifyOutput,
	gateErr error,
) *entity.TransactionLog {
	log := &entity.TransactionLog{
		SessionID:  session.ID,
		BankDriver: session.PSP,
		Status:     entity.LogTagPaymentVerify,
		IP:         strings.TrimSpace(input.IP),
		CreatedAt:  s.now(),
	}

	if gateErr != nil {
		request, response := gate.Exchange(gateErr)
		if request == "" {
			request = string(input.RawCallback)
		}
		code := responseCodeAdapterError
		log.Outcome = entity.LogOutcomeAdapterError
		if errors.Is(gateErr, gate.ErrInvalidCallback) {
			code = responseCodeInvalidCallback
			log.Outcome = entity.LogOutcomeUnknown
		}
		log.Request = request
		log.Response = response
		log.ResponseCode = &code
		log.Description = normalizeOptionalString(truncate(gateErr.Error(), maxLogDescription))
		return log
	}

	log.Request = out.Request
	log.Response = out.Response
	log.ResponseCode = normalizeOptionalString(out.ResponseCode)
	log.Description = normalizeOptionalString(truncate(out.Description, maxLogDescription))

	switch {
	case !out.Success:
		log.Outcome = entity.LogOutcomeFailure
	case out.Amount != 0 && out.Amount != session.Amount:
		code := responseCodeAmountMismatch
		description := fmt.Sprintf("gateway settled %d, session amount %d", out.Amount, session.Amount)
		log.Outcome = entity.LogOutcomeFailure
		log.ResponseCode = &code
		log.Description = &description
	default:
		log.Outcome = entity.LogOutcomeSuccess
		log.TrackingCode = normalizeOptionalString(out.TrackingCode)
		log.CardPan = normalizeOptionalString(out.CardPan)
		log.CardHash = normalizeOptionalString(out.CardHash)
	}
	return log
}

// applyVerifyOutcome derives the new session state from the verify log alone,
// so a session rebuilt from the log matches one settled inline. A WAITING
// inquiry accompanies every PAID outcome.
func (s *TransactionService) applyVerifyOutcome(
	session *entity.TransactionSession,
	log *entity.TransactionLog,
) (*entity.TransactionSession, *entity.TransactionInquiry) {
	updated := *session
	updated.UpdatedAt = s.now()

	if log.Outcome != entity.LogOutcomeSuccess {
		updated.Status = entity.SessionStatusFailed
		return &updated, nil
	}

	updated.Status = entity.SessionStatusPaid
	updated.TrackingCode = log.TrackingCode
	updated.CardPan = log.CardPan
	updated.CardHash = log.CardHash

	return &updated, &entity.TransactionInquiry{
		SessionID: session.ID,
		Status:    entity.InquiryStatusWaiting,
		CreatedAt: updated.UpdatedAt,
		UpdatedAt: updated.UpdatedAt,
	}
}

// settleFromVerifyLog commits the status recorded by a conclusive
// PAYMENT_VERIFY log written under the session's current claim. ok is false
// when no such log exists. The caller holds the session lock.
func (s *TransactionService) settleFromVerifyLog(
	ctx context.Context,
	session *entity.TransactionSession,
) (updated *entity.TransactionSession, ok bool, err error) {
	log, err := s.logRepo.LatestBySessionAndTag(ctx, session.ID, entity.LogTagPaymentVerify, *session.VerifyClaimedAt)
	if err != nil {
		return nil, false, fmt.Errorf("%w: read verify log: %w", ErrPersistence, err)
	}
	if log == nil || log.Outcome == entity.LogOutcomeUnknown {
		return nil, false, nil
	}

	updated, inquiry := s.applyVerifyOutcome(session, log)
	if err := s.commit(ctx, updated, entity.SessionStatusNotPaid, log.Status, inquiry); err != nil {
		if errors.Is(err, ErrAlreadyVerified) {
			stored, findErr := s.sessionRepo.FindByID(ctx, session.ID)
			if findErr != nil || stored == nil {
				return nil, true, err
			}
			return stored, true, err
		}
		return nil, true, err
	}

	s.logger.WithField("session_id", session.ID).
		WithField("status", entity.SessionStatusName(updated.Status)).
		Info("Settled session from verify log")
	s.publish(ctx, event.AfterPaymentVerify, updated, inquiry)
	return updated, true, nil
}

func (s *TransactionService) commit(
	ctx context.Context,
	updated *entity.TransactionSession,
	expectedStatus int32,
	logTag string,
	inquiry *entity.TransactionInquiry,
) error {
	if err := checkTransition(expectedStatus, updated.Status, logTag); err != nil {
		return err
	}

	if err := s.sessionRepo.CommitTransition(ctx, updated, expectedStatus, inquiry); err != nil {
		if errors.Is(err, repository.ErrStaleSession) {
			return fmt.Errorf("%w: status changed concurrently", ErrAlreadyVerified)
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": updated.ID,
			"from":       entity.SessionStatusName(expectedStatus),
			"to":         entity.SessionStatusName(updated.Status),
		}).Error("Transition not committed after audit log was written")
		return fmt.Errorf("%w: commit %s: %w", ErrInconsistentState, entity.SessionStatusName(updated.Status), err)
	}

	s.observeTransition(updated.PSP, expectedStatus, updated.Status)
	return nil
}

func (s *TransactionService) releaseVerifyClaim(ctx context.Context, sessionID uint64) {
	if err := s.sessionRepo.ReleaseVerificationClaim(ctx, sessionID); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Warn("Failed to release verify claim")
	}
}
