package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-transactions/app/entity"
	"github.com/vibast-solutions/ms-go-transactions/app/event"
	"github.com/vibast-solutions/ms-go-transactions/app/gate"
)

// Inquire re-checks a WAITING inquiry with its gate. Gates without the inquiry
// capability leave the inquiry untouched.
func (s *TransactionService) Inquire(ctx context.Context, inquiryID uint64) (*entity.TransactionInquiry, error) {
	inquiry, err := s.inquiryRepo.FindByID(ctx, inquiryID)
	if err != nil {
		return nil, err
	}
	if inquiry == nil {
		return nil, ErrInquiryNotFound
	}
	if inquiry.Status != entity.InquiryStatusWaiting {
		return inquiry, ErrInquiryNotWaiting
	}

	session, err := s.sessionRepo.FindByID(ctx, inquiry.SessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: inquiry %d has no session", ErrInconsistentState, inquiry.ID)
	}

	g, err := s.resolveGate(session.PSP)
	if err != nil {
		return nil, err
	}
	inquirer, ok := g.(gate.Inquirer)
	if !ok {
		return inquiry, nil
	}

	unlock := s.locks.Lock(session.ID)
	defer unlock()

	now := s.now()
	claimed, err := s.inquiryRepo.Claim(ctx, inquiry.ID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: claim inquiry: %w", ErrPersistence, err)
	}
	if !claimed {
		return inquiry, ErrInquiryNotWaiting
	}
	inquiry.Status = entity.InquiryStatusProcessing
	inquiry.Attempts++
	inquiry.ClaimedAt = &now

	trackingCode := ""
	if session.TrackingCode != nil {
		trackingCode = *session.TrackingCode
	}

	gateCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	start := time.Now()
	out, gateErr := inquirer.Inquire(gateCtx, &gate.InquiryInput{
		Authority:    session.Authority,
		TrackingCode: trackingCode,
		Amount:       session.Amount,
	})
	cancel()

	persistCtx := context.WithoutCancel(ctx)

	if errors.Is(gateErr, gate.ErrInquiryUnsupported) {
		s.releaseInquiry(persistCtx, inquiry)
		return inquiry, nil
	}
	s.observeGatewayCall(session.PSP, "inquiry", gateErr == nil, start)

	log := s.inquiryLog(session, out, gateErr)
	if err := s.logRepo.Create(persistCtx, log); err != nil {
		s.releaseInquiry(persistCtx, inquiry)
		return nil, fmt.Errorf("%w: inquiry log: %w", ErrPersistence, err)
	}

	if gateErr != nil && inquiry.Attempts < s.cfg.InquiryMaxAttempts {
		s.releaseInquiry(persistCtx, inquiry)
		return inquiry, fmt.Errorf("%w: inquiry: %w", ErrAdapterUnavailable, gateErr)
	}

	succeeded := gateErr == nil && out.Success
	session, err = s.resolveInquiry(persistCtx, session, inquiry, succeeded)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, event.BeforePaymentInquiry, session, inquiry)

	if gateErr != nil {
		return inquiry, fmt.Errorf("%w: inquiry: %w", ErrAdapterUnavailable, gateErr)
	}
	return inquiry, nil
}

// resolveInquiry closes a PROCESSING inquiry. When the policy flags the
// result, the PAID to INQUIRY_PROBLEM transition is written in the same
// database transaction so neither change can land without the other. It
// returns the session as stored afterwards.
func (s *TransactionService) resolveInquiry(
	ctx context.Context,
	session *entity.TransactionSession,
	inquiry *entity.TransactionInquiry,
	succeeded bool,
) (*entity.TransactionSession, error) {
	target := entity.InquiryStatusFailed
	if succeeded {
		target = entity.InquiryStatusSuccess
	}
	now := s.now()

	var flagged *entity.TransactionSession
	if s.policy(session, succeeded) {
		candidate := *session
		candidate.Status = entity.SessionStatusInquiryProblem
		candidate.UpdatedAt = now
		if err := checkTransition(session.Status, candidate.Status, entity.LogTagPaymentInquiry); err == nil {
			flagged = &candidate
		}
	}

	var resolved, applied bool
	var err error
	if flagged != nil {
		resolved, applied, err = s.inquiryRepo.ResolveAndFlag(ctx, inquiry.ID, target, now, flagged, entity.SessionStatusPaid)
	} else {
		resolved, err = s.inquiryRepo.Resolve(ctx, inquiry.ID, target, now)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: resolve inquiry: %w", ErrPersistence, err)
	}
	if !resolved {
		return nil, fmt.Errorf("%w: inquiry %d claim lost", ErrInquiryNotWaiting, inquiry.ID)
	}

	inquiry.Status = target
	inquiry.ClaimedAt = nil
	inquiry.UpdatedAt = now
	s.metrics.ObserveInquiry(session.PSP, entity.InquiryStatusName(target))

	if applied {
		s.observeTransition(session.PSP, entity.SessionStatusPaid, flagged.Status)
		return flagged, nil
	}
	return session, nil
}

func (s *TransactionService) inquiryLog(session *entity.TransactionSession, out *gate.InquiryOutput, gateErr error) *entity.TransactionLog {
	log := &entity.TransactionLog{
		SessionID:  session.ID,
		BankDriver: session.PSP,
		Status:     entity.LogTagPaymentInquiry,
		CreatedAt:  s.now(),
	}

	if gateErr != nil {
		code := responseCodeAdapterError
		log.Request, log.Response = gate.Exchange(gateErr)
		log.Outcome = entity.LogOutcomeAdapterError
		log.ResponseCode = &code
		log.Description = normalizeOptionalString(truncate(gateErr.Error(), maxLogDescription))
		return log
	}

	log.Request = out.Request
	log.Response = out.Response
	log.ResponseCode = normalizeOptionalString(out.ResponseCode)
	log.Description = normalizeOptionalString(truncate(out.Description, maxLogDescription))
	log.Outcome = entity.LogOutcomeFailure
	if out.Success {
		log.Outcome = entity.LogOutcomeSuccess
	}
	return log
}

func (s *TransactionService) releaseInquiry(ctx context.Context, inquiry *entity.TransactionInquiry) {
	if _, err := s.inquiryRepo.Release(ctx, inquiry.ID, s.now()); err != nil {
		s.logger.WithError(err).WithField("inquiry_id", inquiry.ID).Warn("Failed to release inquiry claim")
		return
	}
	inquiry.Status = entity.InquiryStatusWaiting
	inquiry.ClaimedAt = nil
}
