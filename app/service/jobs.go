package service

import (
	"context"
	"errors"

	"github.com/vibast-solutions/ms-go-transactions/app/entity"
	"github.com/vibast-solutions/ms-go-transactions/app/event"
)

// RunInquiryBatch processes WAITING inquiries whose gate can inquire.
func (s *TransactionService) RunInquiryBatch(ctx context.Context) error {
	codes := s.gates.InquiryCodes()
	if len(codes) == 0 {
		return nil
	}

	items, err := s.inquiryRepo.ListWaiting(ctx, codes, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, inquiry := range items {
		if inquiry == nil {
			continue
		}
		if _, err := s.Inquire(ctx, inquiry.ID); err != nil {
			if errors.Is(err, ErrInquiryNotWaiting) {
				continue
			}
			s.logger.WithError(err).WithField("inquiry_id", inquiry.ID).Warn("Inquiry failed")
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// RunReleaseStaleInquiriesBatch returns inquiries abandoned in PROCESSING to
// WAITING, or fails them once they ran out of attempts.
func (s *TransactionService) RunReleaseStaleInquiriesBatch(ctx context.Context) error {
	now := s.now()
	items, err := s.inquiryRepo.ListStaleClaims(ctx, now.Add(-s.cfg.InquiryClaimTTL), s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, inquiry := range items {
		if inquiry == nil {
			continue
		}
		if inquiry.Attempts >= s.cfg.InquiryMaxAttempts {
			if err := s.failExhaustedInquiry(ctx, inquiry); err != nil {
				firstErr = keepFirstErr(firstErr, err)
			}
			continue
		}
		if _, err := s.inquiryRepo.Release(ctx, inquiry.ID, now); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// failExhaustedInquiry resolves an inquiry that never got an answer as FAILED
// and lets the inquiry policy judge its session like any other failed result.
func (s *TransactionService) failExhaustedInquiry(ctx context.Context, inquiry *entity.TransactionInquiry) error {
	session, err := s.sessionRepo.FindByID(ctx, inquiry.SessionID)
	if err != nil {
		return err
	}
	if session == nil {
		_, err := s.inquiryRepo.Resolve(ctx, inquiry.ID, entity.InquiryStatusFailed, s.now())
		return err
	}

	unlock := s.locks.Lock(session.ID)
	defer unlock()

	session, err = s.resolveInquiry(ctx, session, inquiry, false)
	if err != nil {
		if errors.Is(err, ErrInquiryNotWaiting) {
			return nil
		}
		return err
	}
	s.publish(ctx, event.BeforePaymentInquiry, session, inquiry)
	return nil
}

// RunReconcileBatch settles NOT_PAID sessions whose verify claim went stale.
// A PAYMENT_VERIFY log written after the claim decides the status; without
// one the claim is released so the callback can be retried.
func (s *TransactionService) RunReconcileBatch(ctx context.Context) error {
	now := s.now()
	items, err := s.sessionRepo.ListStaleVerifyClaims(ctx, now.Add(-s.cfg.VerifyClaimTTL), s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, session := range items {
		if session == nil || session.VerifyClaimedAt == nil {
			continue
		}
		if err := s.reconcileSession(ctx, session); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *TransactionService) reconcileSession(ctx context.Context, session *entity.TransactionSession) error {
	unlock := s.locks.Lock(session.ID)
	defer unlock()

	_, ok, err := s.settleFromVerifyLog(ctx, session)
	switch {
	case errors.Is(err, ErrAlreadyVerified):
		return nil
	case err != nil:
		return err
	case !ok:
		return s.sessionRepo.ReleaseVerificationClaim(ctx, session.ID)
	}
	return nil
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
