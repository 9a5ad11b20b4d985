package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-transactions/app/client"
	"github.com/vibast-solutions/ms-go-transactions/app/entity"
	"github.com/vibast-solutions/ms-go-transactions/app/event"
	"github.com/vibast-solutions/ms-go-transactions/app/factory"
	"github.com/vibast-solutions/ms-go-transactions/app/gate"
	"github.com/vibast-solutions/ms-go-transactions/app/repository"
	"github.com/vibast-solutions/ms-go-transactions/config"
)

const (
	defaultListLimit      = int32(100)
	defaultBatchSize      = int32(100)
	defaultGatewayTimeout = 15 * time.Second
	defaultVerifyClaimTTL = 2 * time.Minute
	defaultInquiryTTL     = 5 * time.Minute
	defaultEventTimeout   = 2 * time.Second
	maxLogDescription     = 1024
)

type listSessionsRequest interface {
	GetOrderId() string
	GetGate() string
	GetHasStatus() bool
	GetStatus() int32
	GetLimit() int32
	GetOffset() int32
}

type sessionRepository interface {
	Create(ctx context.Context, session *entity.TransactionSession) error
	FindByID(ctx context.Context, id uint64) (*entity.TransactionSession, error)
	FindByAuthority(ctx context.Context, psp, authority string) (*entity.TransactionSession, error)
	FindByCallbackToken(ctx context.Context, psp, token string) (*entity.TransactionSession, error)
	ListByOrderID(ctx context.Context, orderID string) ([]*entity.TransactionSession, error)
	List(ctx context.Context, filter repository.SessionFilter) ([]*entity.TransactionSession, error)
	ClaimVerification(ctx context.Context, id uint64, now, staleBefore time.Time) (bool, error)
	ReleaseVerificationClaim(ctx context.Context, id uint64) error
	CommitTransition(ctx context.Context, session *entity.TransactionSession, expectedStatus int32, inquiry *entity.TransactionInquiry) error
	UpdateNote(ctx context.Context, id uint64, note *string, now time.Time) error
	ListStaleVerifyClaims(ctx context.Context, before time.Time, limit int32) ([]*entity.TransactionSession, error)
}

type logRepository interface {
	Create(ctx context.Context, log *entity.TransactionLog) error
	ListBySessionID(ctx context.Context, sessionID uint64) ([]*entity.TransactionLog, error)
	LatestBySessionAndTag(ctx context.Context, sessionID uint64, tag string, since time.Time) (*entity.TransactionLog, error)
}

type inquiryRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.TransactionInquiry, error)
	ListBySessionID(ctx context.Context, sessionID uint64) ([]*entity.TransactionInquiry, error)
	ListWaiting(ctx context.Context, psps []string, limit int32) ([]*entity.TransactionInquiry, error)
	Claim(ctx context.Context, id uint64, now time.Time) (bool, error)
	Resolve(ctx context.Context, id uint64, status int32, now time.Time) (bool, error)
	ResolveAndFlag(ctx context.Context, id uint64, status int32, now time.Time, session *entity.TransactionSession, expectedStatus int32) (resolved bool, flagged bool, err error)
	Release(ctx context.Context, id uint64, now time.Time) (bool, error)
	ListStaleClaims(ctx context.Context, before time.Time, limit int32) ([]*entity.TransactionInquiry, error)
}

type orderLookup interface {
	Amount(ctx context.Context, orderID string) (int64, error)
}

type metricsRecorder interface {
	ObserveTransition(psp, from, to string)
	ObserveGatewayCall(psp, operation, result string, seconds float64)
	ObserveInquiry(psp, status string)
	ObserveVerifyRejected(psp, reason string)
	ObserveEventFailure(event string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveTransition(string, string, string) {}
func (nopMetrics) ObserveGatewayCall(string, string, string, float64) {}
func (nopMetrics) ObserveInquiry(string, string) {}
func (nopMetrics) ObserveVerifyRejected(string, string) {}
func (nopMetrics) ObserveEventFailure(string) {}

type Option func(*TransactionService)

func WithEventSink(sink event.Sink) Option {
	return func(s *TransactionService) {
		if sink != nil {
			s.events = sink
		}
	}
}

func WithMetrics(m metricsRecorder) Option {
	return func(s *TransactionService) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithInquiryPolicy(policy InquiryPolicy) Option {
	return func(s *TransactionService) {
		if policy != nil {
			s.policy = policy
		}
	}
}

func WithOrderLookup(orders orderLookup) Option {
	return func(s *TransactionService) {
		s.orders = orders
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *TransactionService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// TransactionService is the only writer of session status.
type TransactionService struct {
	sessionRepo  sessionRepository
	logRepo      logRepository
	inquiryRepo  inquiryRepository
	gates        *gate.Registry
	callbackURLs gate.CallbackURLBuilder
	cfg          config.TransactionsConfig

	events  event.Sink
	metrics metricsRecorder
	policy  InquiryPolicy
	orders  orderLookup
	logger  logrus.FieldLogger
	locks   *keyedLocker
	now     func() time.Time
}

func NewTransactionService(
	sessionRepo sessionRepository,
	logRepo logRepository,
	inquiryRepo inquiryRepository,
	gates *gate.Registry,
	callbackURLs gate.CallbackURLBuilder,
	cfg config.TransactionsConfig,
	opts ...Option,
) *TransactionService {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = defaultGatewayTimeout
	}
	if cfg.VerifyClaimTTL <= 0 {
		cfg.VerifyClaimTTL = defaultVerifyClaimTTL
	}
	if cfg.InquiryClaimTTL <= 0 {
		cfg.InquiryClaimTTL = defaultInquiryTTL
	}
	if cfg.InquiryMaxAttempts <= 0 {
		cfg.InquiryMaxAttempts = 1
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = defaultEventTimeout
	}

	s := &TransactionService{
		sessionRepo:  sessionRepo,
		logRepo:      logRepo,
		inquiryRepo:  inquiryRepo,
		gates:        gates,
		callbackURLs: callbackURLs,
		cfg:          cfg,
		events:       event.NopSink{},
		metrics:      nopMetrics{},
		policy:       NeverFlagInquiry,
		logger:       factory.NewModuleLogger("transactions-service"),
		locks:        newKeyedLocker(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	if cfg.FlagFailedInquiry {
		s.policy = FlagFailedInquiry
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type InitiateInput struct {
	OrderID     string
	Amount      int64
	Gate        string
	Type        int32
	Description string
	Payer       gate.Identity
	IP          string
}

type InitiateResult struct {
	Session  *entity.TransactionSession
	Redirect gate.Redirect
}

// Initiate asks the gate for a pay request and records a NOT_PAID session with
// its PAYMENT_REQUEST log. No redirect is returned unless both are durable.
func (s *TransactionService) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	orderID := strings.TrimSpace(input.OrderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrInvalidRequest)
	}

	sessionType := input.Type
	if sessionType == 0 {
		sessionType = entity.SessionTypeWebBased
	}
	if sessionType != entity.SessionTypeWebBased && sessionType != entity.SessionTypeCartToCart {
		return nil, fmt.Errorf("%w: unknown session type %d", ErrInvalidRequest, sessionType)
	}

	g, err := s.resolveGate(input.Gate)
	if err != nil {
		return nil, err
	}

	amount := input.Amount
	if amount <= 0 && s.orders != nil {
		amount, err = s.orders.Amount(ctx, orderID)
		switch {
		case errors.Is(err, client.ErrOrderNotFound), errors.Is(err, client.ErrInvalidOrderData):
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		case err != nil:
			return nil, fmt.Errorf("order amount lookup: %w", err)
		}
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	token := uuid.NewString()
	callbackURL, err := s.callbackURLs.Build(g.Code(), token)
	if err != nil {
		return nil, fmt.Errorf("build callback url: %w", err)
	}

	gateCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	start := time.Now()
	payOut, err := g.BuildPayRequest(gateCtx, &gate.PayInput{
		OrderID:       orderID,
		Amount:        amount,
		CallbackURL:   callbackURL,
		CallbackToken: token,
		Description:   strings.TrimSpace(input.Description),
		Payer:         input.Payer,
	})
	cancel()
	s.observeGatewayCall(g.Code(), "pay_request", err == nil, start)
	if err != nil {
		return nil, fmt.Errorf("%w: pay request: %w", ErrAdapterUnavailable, err)
	}

	now := s.now()
	session := &entity.TransactionSession{
		OrderID:       orderID,
		Authority:     payOut.Authority,
		PSP:           g.Code(),
		CallbackToken: token,
		Amount:        amount,
		Description:   normalizeOptionalString(input.Description),
		Status:        entity.SessionStatusNotPaid,
		Type:          sessionType,
		PayerMobile:   normalizeOptionalString(input.Payer.Get(gate.IdentityMobile)),
		IP:            strings.TrimSpace(input.IP),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: create session: %w", ErrPersistence, err)
	}

	if err := s.logRepo.Create(ctx, &entity.TransactionLog{
		SessionID:    session.ID,
		BankDriver:   g.Code(),
		Status:       entity.LogTagPaymentRequest,
		Outcome:      entity.LogOutcomeSuccess,
		Request:      payOut.Request,
		Response:     payOut.Response,
		ResponseCode: normalizeOptionalString(payOut.ResponseCode),
		IP:           session.IP,
		CreatedAt:    s.now(),
	}); err != nil {
		return nil, fmt.Errorf("%w: pay request log: %w", ErrPersistence, err)
	}

	s.publish(ctx, event.BeforePaymentRequest, session, nil)

	return &InitiateResult{Session: session, Redirect: payOut.Redirect}, nil
}

func (s *TransactionService) GetSession(ctx context.Context, id uint64) (*entity.TransactionSession, error) {
	session, err := s.sessionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *TransactionService) ListSessions(ctx context.Context, req listSessionsRequest) ([]*entity.TransactionSession, error) {
	limit := req.GetLimit()
	if limit <= 0 {
		limit = defaultListLimit
	}

	return s.sessionRepo.List(ctx, repository.SessionFilter{
		OrderID:   strings.TrimSpace(req.GetOrderId()),
		PSP:       strings.ToLower(strings.TrimSpace(req.GetGate())),
		HasStatus: req.GetHasStatus(),
		Status:    req.GetStatus(),
		Limit:     limit,
		Offset:    req.GetOffset(),
	})
}

// FindSessionsByOrder lets callers look for an existing session before
// retrying Initiate for the same order.
func (s *TransactionService) FindSessionsByOrder(ctx context.Context, orderID string) ([]*entity.TransactionSession, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrInvalidRequest)
	}
	return s.sessionRepo.ListByOrderID(ctx, orderID)
}

func (s *TransactionService) ListSessionLogs(ctx context.Context, sessionID uint64) ([]*entity.TransactionLog, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.logRepo.ListBySessionID(ctx, sessionID)
}

func (s *TransactionService) ListSessionInquiries(ctx context.Context, sessionID uint64) ([]*entity.TransactionInquiry, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.inquiryRepo.ListBySessionID(ctx, sessionID)
}

// UpdateNote changes the free-text note only; status and amount are never
// writable from outside the lifecycle operations.
func (s *TransactionService) UpdateNote(ctx context.Context, id uint64, note string) (*entity.TransactionSession, error) {
	if err := s.sessionRepo.UpdateNote(ctx, id, normalizeOptionalString(note), s.now()); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s.GetSession(ctx, id)
}

func (s *TransactionService) resolveGate(code string) (gate.Gate, error) {
	g, err := s.gates.Get(code)
	if err != nil {
		if errors.Is(err, gate.ErrGateNotSupported) {
			return nil, fmt.Errorf("%w: %s", ErrGateUnsupported, strings.TrimSpace(code))
		}
		return nil, err
	}
	return g, nil
}

func (s *TransactionService) publish(ctx context.Context, typ event.Type, session *entity.TransactionSession, inquiry *entity.TransactionInquiry) {
	evt := event.Event{
		Type:       typ,
		SessionID:  session.ID,
		OrderID:    session.OrderID,
		PSP:        session.PSP,
		Amount:     session.Amount,
		Status:     entity.SessionStatusName(session.Status),
		OccurredAt: s.now(),
	}
	if session.TrackingCode != nil {
		evt.TrackingCode = *session.TrackingCode
	}
	if inquiry != nil {
		evt.InquiryID = inquiry.ID
		evt.InquiryStatus = entity.InquiryStatusName(inquiry.Status)
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.EventTimeout)
	defer cancel()
	if err := s.events.Publish(publishCtx, evt); err != nil {
		s.metrics.ObserveEventFailure(string(typ))
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event":      typ,
			"session_id": session.ID,
		}).Warn("Failed to publish transaction event")
	}
}

func (s *TransactionService) observeGatewayCall(psp, operation string, ok bool, start time.Time) {
	result := "success"
	if !ok {
		result = "error"
	}
	s.metrics.ObserveGatewayCall(psp, operation, result, time.Since(start).Seconds())
}

func (s *TransactionService) observeTransition(psp string, from, to int32) {
	s.metrics.ObserveTransition(psp, entity.SessionStatusName(from), entity.SessionStatusName(to))
}

func (s *TransactionService) batchSize() int32 {
	if s.cfg.JobBatchSize > 0 {
		return s.cfg.JobBatchSize
	}
	return defaultBatchSize
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// truncate cuts value to at most max bytes without splitting a UTF-8 sequence.
func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
