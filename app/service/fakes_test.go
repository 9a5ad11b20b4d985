package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-transactions/app/client"
	"github.com/vibast-solutions/ms-go-transactions/app/entity"
	"github.com/vibast-solutions/ms-go-transactions/app/event"
	"github.com/vibast-solutions/ms-go-transactions/app/gate"
	"github.com/vibast-solutions/ms-go-transactions/app/repository"
	"github.com/vibast-solutions/ms-go-transactions/config"
)

// memStore backs the three fake repositories so one test can observe the
// ordering of log writes and status commits.
type memStore struct {
	mu sync.Mutex

	sessions  map[uint64]*entity.TransactionSession
	logs      []*entity.TransactionLog
	inquiries map[uint64]*entity.TransactionInquiry

	nextSessionID uint64
	nextLogID     uint64
	nextInquiryID uint64

	history []string

	failSessionCreate error
	failLogCreate     map[string]error
	failCommit        error
	failResolve       error
}

func newMemStore() *memStore {
	return &memStore{
		sessions:      map[uint64]*entity.TransactionSession{},
		inquiries:     map[uint64]*entity.TransactionInquiry{},
		nextSessionID: 1,
		nextLogID:     1,
		nextInquiryID: 1,
		failLogCreate: map[string]error{},
	}
}

func (m *memStore) session(id uint64) *entity.TransactionSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.sessions[id]
	if !ok {
		return nil
	}
	copyItem := *item
	return &copyItem
}

func (m *memStore) logsFor(sessionID uint64) []*entity.TransactionLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]*entity.TransactionLog, 0)
	for _, item := range m.logs {
		if item.SessionID == sessionID {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	return items
}

func (m *memStore) inquiriesFor(sessionID uint64) []*entity.TransactionInquiry {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]*entity.TransactionInquiry, 0)
	for _, item := range m.inquiries {
		if item.SessionID == sessionID {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (m *memStore) historySnapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history...)
}

type fakeSessionRepo struct{ *memStore }

func (r fakeSessionRepo) Create(_ context.Context, session *entity.TransactionSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSessionCreate != nil {
		return r.failSessionCreate
	}
	id := r.nextSessionID
	r.nextSessionID++
	copyItem := *session
	copyItem.ID = id
	r.sessions[id] = &copyItem
	session.ID = id
	return nil
}

func (r fakeSessionRepo) FindByID(_ context.Context, id uint64) (*entity.TransactionSession, error) {
	return r.session(id), nil
}

func (r fakeSessionRepo) FindByAuthority(_ context.Context, psp, authority string) (*entity.TransactionSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.sessions {
		if item.PSP == psp && item.Authority == authority {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r fakeSessionRepo) FindByCallbackToken(_ context.Context, psp, token string) (*entity.TransactionSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.sessions {
		if item.PSP == psp && item.CallbackToken == token {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r fakeSessionRepo) ListByOrderID(ctx context.Context, orderID string) ([]*entity.TransactionSession, error) {
	return r.List(ctx, repository.SessionFilter{OrderID: orderID})
}

func (r fakeSessionRepo) List(_ context.Context, filter repository.SessionFilter) ([]*entity.TransactionSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.TransactionSession, 0)
	for _, item := range r.sessions {
		if filter.OrderID != "" && item.OrderID != filter.OrderID {
			continue
		}
		if filter.PSP != "" && item.PSP != filter.PSP {
			continue
		}
		if filter.HasStatus && item.Status != filter.Status {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	if filter.Limit > 0 && int(filter.Limit) < len(items) {
		items = items[:filter.Limit]
	}
	return items, nil
}

func (r fakeSessionRepo) ClaimVerification(_ context.Context, id uint64, now, staleBefore time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.sessions[id]
	if !ok || item.Status != entity.SessionStatusNotPaid {
		return false, nil
	}
	if item.VerifyClaimedAt != nil && item.VerifyClaimedAt.After(staleBefore) {
		return false, nil
	}
	claimedAt := now
	item.VerifyClaimedAt = &claimedAt
	return true, nil
}

func (r fakeSessionRepo) ReleaseVerificationClaim(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item, ok := r.sessions[id]; ok && item.Status == entity.SessionStatusNotPaid {
		item.VerifyClaimedAt = nil
	}
	return nil
}

func (r fakeSessionRepo) CommitTransition(_ context.Context, session *entity.TransactionSession, expectedStatus int32, inquiry *entity.TransactionInquiry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCommit != nil {
		return r.failCommit
	}
	item, ok := r.sessions[session.ID]
	if !ok || item.Status != expectedStatus {
		return repository.ErrStaleSession
	}
	if inquiry != nil {
		for _, existing := range r.inquiries {
			if existing.SessionID == session.ID &&
				(existing.Status == entity.InquiryStatusWaiting || existing.Status == entity.InquiryStatusProcessing) {
				return repository.ErrInquiryAlreadyOpen
			}
		}
		id := r.nextInquiryID
		r.nextInquiryID++
		inquiry.ID = id
		inquiry.SessionID = session.ID
		copyInquiry := *inquiry
		r.inquiries[id] = &copyInquiry
	}

	copyItem := *session
	copyItem.VerifyClaimedAt = nil
	r.sessions[session.ID] = &copyItem
	session.VerifyClaimedAt = nil
	r.history = append(r.history, "commit:"+entity.SessionStatusName(session.Status))
	return nil
}

func (r fakeSessionRepo) UpdateNote(_ context.Context, id uint64, note *string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	item.Note = note
	item.UpdatedAt = now
	return nil
}

func (r fakeSessionRepo) ListStaleVerifyClaims(_ context.Context, before time.Time, limit int32) ([]*entity.TransactionSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.TransactionSession, 0)
	for _, item := range r.sessions {
		if item.Status == entity.SessionStatusNotPaid && item.VerifyClaimedAt != nil && !item.VerifyClaimedAt.After(before) {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items, nil
}

type fakeLogRepo struct{ *memStore }

func (r fakeLogRepo) Create(_ context.Context, log *entity.TransactionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failLogCreate[log.Status]; err != nil {
		return err
	}
	log.ID = r.nextLogID
	r.nextLogID++
	copyItem := *log
	r.logs = append(r.logs, &copyItem)
	r.history = append(r.history, "log:"+log.Status)
	return nil
}

func (r fakeLogRepo) ListBySessionID(_ context.Context, sessionID uint64) ([]*entity.TransactionLog, error) {
	return r.logsFor(sessionID), nil
}

func (r fakeLogRepo) LatestBySessionAndTag(_ context.Context, sessionID uint64, tag string, since time.Time) (*entity.TransactionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.logs) - 1; i >= 0; i-- {
		item := r.logs[i]
		if item.SessionID == sessionID && item.Status == tag && !item.CreatedAt.Before(since) {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

type fakeInquiryRepo struct{ *memStore }

func (r fakeInquiryRepo) FindByID(_ context.Context, id uint64) (*entity.TransactionInquiry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.inquiries[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r fakeInquiryRepo) ListBySessionID(_ context.Context, sessionID uint64) ([]*entity.TransactionInquiry, error) {
	return r.inquiriesFor(sessionID), nil
}

func (r fakeInquiryRepo) ListWaiting(_ context.Context, psps []string, limit int32) ([]*entity.TransactionInquiry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	allowed := map[string]bool{}
	for _, psp := range psps {
		allowed[psp] = true
	}
	items := make([]*entity.TransactionInquiry, 0)
	for _, item := range r.inquiries {
		session := r.sessions[item.SessionID]
		if item.Status == entity.InquiryStatusWaiting && session != nil && allowed[session.PSP] {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items, nil
}

func (r fakeInquiryRepo) Claim(_ context.Context, id uint64, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.inquiries[id]
	if !ok || item.Status != entity.InquiryStatusWaiting {
		return false, nil
	}
	claimedAt := now
	item.Status = entity.InquiryStatusProcessing
	item.Attempts++
	item.ClaimedAt = &claimedAt
	return true, nil
}

func (r fakeInquiryRepo) Resolve(_ context.Context, id uint64, status int32, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failResolve != nil {
		return false, r.failResolve
	}
	item, ok := r.inquiries[id]
	if !ok || item.Status != entity.InquiryStatusProcessing {
		return false, nil
	}
	item.Status = status
	item.ClaimedAt = nil
	item.UpdatedAt = now
	r.history = append(r.history, "inquiry:"+entity.InquiryStatusName(status))
	return true, nil
}

func (r fakeInquiryRepo) ResolveAndFlag(
	_ context.Context,
	id uint64,
	status int32,
	now time.Time,
	session *entity.TransactionSession,
	expectedStatus int32,
) (bool, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failResolve != nil {
		return false, false, r.failResolve
	}
	item, ok := r.inquiries[id]
	if !ok || item.Status != entity.InquiryStatusProcessing {
		return false, false, nil
	}
	item.Status = status
	item.ClaimedAt = nil
	item.UpdatedAt = now
	r.history = append(r.history, "inquiry:"+entity.InquiryStatusName(status))

	stored, ok := r.sessions[session.ID]
	if !ok || stored.Status != expectedStatus {
		return true, false, nil
	}
	copyItem := *session
	r.sessions[session.ID] = &copyItem
	r.history = append(r.history, "commit:"+entity.SessionStatusName(session.Status))
	return true, true, nil
}

func (r fakeInquiryRepo) Release(_ context.Context, id uint64, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.inquiries[id]
	if !ok || item.Status != entity.InquiryStatusProcessing {
		return false, nil
	}
	item.Status = entity.InquiryStatusWaiting
	item.ClaimedAt = nil
	item.UpdatedAt = now
	return true, nil
}

func (r fakeInquiryRepo) ListStaleClaims(_ context.Context, before time.Time, limit int32) ([]*entity.TransactionInquiry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.TransactionInquiry, 0)
	for _, item := range r.inquiries {
		if item.Status == entity.InquiryStatusProcessing && item.ClaimedAt != nil && !item.ClaimedAt.After(before) {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

type fakeGate struct {
	code string

	payOut *gate.PayOutput
	payErr error

	verifyOut   *gate.VerifyOutput
	verifyErr   error
	verifyDelay time.Duration
	verifyCalls int32
}

func newFakeGate(code string) *fakeGate {
	return &fakeGate{
		code: code,
		payOut: &gate.PayOutput{
			Authority:    "AUTH-1",
			ResponseCode: "100",
			Request:      `{"amount":1000}`,
			Response:     `{"authority":"AUTH-1"}`,
			Redirect:     gate.Redirect{Action: "https://bank.example.com/pay/AUTH-1", Method: "GET"},
		},
		verifyOut: &gate.VerifyOutput{
			Success:      true,
			TrackingCode: "T1",
			CardPan:      "6037****1234",
			CardHash:     "hash-1",
			Amount:       1000,
			ResponseCode: "100",
			Request:      `{"authority":"AUTH-1"}`,
			Response:     `{"status":"OK"}`,
		},
	}
}

func (g *fakeGate) Code() string { return g.code }

func (g *fakeGate) BuildPayRequest(_ context.Context, input *gate.PayInput) (*gate.PayOutput, error) {
	if g.payErr != nil {
		return nil, g.payErr
	}
	out := *g.payOut
	return &out, nil
}

func (g *fakeGate) Verify(ctx context.Context, _ *gate.VerifyInput) (*gate.VerifyOutput, error) {
	atomic.AddInt32(&g.verifyCalls, 1)
	if g.verifyDelay > 0 {
		select {
		case <-time.After(g.verifyDelay):
		case <-ctx.Done():
			return nil, &gate.RoundTripError{Op: "verify", Request: `{"authority":"AUTH-1"}`, Err: ctx.Err()}
		}
	}
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	out := *g.verifyOut
	return &out, nil
}

func (g *fakeGate) calls() int32 {
	return atomic.LoadInt32(&g.verifyCalls)
}

type fakeInquiryGate struct {
	*fakeGate

	inquiryOut   *gate.InquiryOutput
	inquiryErr   error
	inquiryCalls int32
}

func newFakeInquiryGate(code string) *fakeInquiryGate {
	return &fakeInquiryGate{
		fakeGate: newFakeGate(code),
		inquiryOut: &gate.InquiryOutput{
			Success:      true,
			ResponseCode: "100",
			Request:      `{"authority":"AUTH-1"}`,
			Response:     `{"status":"OK"}`,
		},
	}
}

func (g *fakeInquiryGate) Inquire(_ context.Context, _ *gate.InquiryInput) (*gate.InquiryOutput, error) {
	atomic.AddInt32(&g.inquiryCalls, 1)
	if g.inquiryErr != nil {
		return nil, g.inquiryErr
	}
	out := *g.inquiryOut
	return &out, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, evt event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return s.err
}

func (s *recordingSink) types() []event.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]event.Type, 0, len(s.events))
	for _, evt := range s.events {
		items = append(items, evt.Type)
	}
	return items
}

// blockingSink holds every publish until the caller's context is done.
type blockingSink struct {
	calls int32
}

func (s *blockingSink) Publish(ctx context.Context, _ event.Event) error {
	atomic.AddInt32(&s.calls, 1)
	<-ctx.Done()
	return ctx.Err()
}

type fakeOrders struct {
	amounts map[string]int64
}

func (o *fakeOrders) Amount(_ context.Context, orderID string) (int64, error) {
	amount, ok := o.amounts[orderID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", client.ErrOrderNotFound, orderID)
	}
	return amount, nil
}

type serviceFixture struct {
	store   *memStore
	gate    *fakeInquiryGate
	sink    *recordingSink
	service *TransactionService
}

func defaultTransactionsConfig() config.TransactionsConfig {
	return config.TransactionsConfig{
		GatewayTimeout:     time.Second,
		VerifyClaimTTL:     time.Minute,
		InquiryClaimTTL:    time.Minute,
		InquiryMaxAttempts: 3,
		JobBatchSize:       50,
	}
}

func newFixture(t *testing.T, cfg config.TransactionsConfig, opts ...Option) *serviceFixture {
	t.Helper()
	store := newMemStore()
	g := newFakeInquiryGate("rest")
	sink := &recordingSink{}
	opts = append([]Option{WithEventSink(sink)}, opts...)
	svc := newServiceOnStore(store, gate.NewRegistry(g), cfg, opts...)
	return &serviceFixture{store: store, gate: g, sink: sink, service: svc}
}

func newServiceOnStore(store *memStore, registry *gate.Registry, cfg config.TransactionsConfig, opts ...Option) *TransactionService {
	return NewTransactionService(
		fakeSessionRepo{store},
		fakeLogRepo{store},
		fakeInquiryRepo{store},
		registry,
		gate.NewPathCallbackURLBuilder("https://shop.example.com"),
		cfg,
		opts...,
	)
}

func (f *serviceFixture) initiate(t *testing.T) *entity.TransactionSession {
	t.Helper()
	result, err := f.service.Initiate(context.Background(), InitiateInput{
		OrderID: "42",
		Amount:  1000,
		Gate:    "rest",
		IP:      "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	return result.Session
}

func (f *serviceFixture) verifyInput(session *entity.TransactionSession) VerifyInput {
	return VerifyInput{
		Gate:          "rest",
		CallbackToken: session.CallbackToken,
		CallbackData:  map[string]string{"authority": session.Authority, "status": "OK"},
		RawCallback:   []byte(fmt.Sprintf(`{"authority":%q,"status":"OK"}`, session.Authority)),
		IP:            "10.0.0.2",
	}
}

func assertLogTags(t *testing.T, logs []*entity.TransactionLog, expected ...string) {
	t.Helper()
	if len(logs) != len(expected) {
		t.Fatalf("expected %d logs, got %d", len(expected), len(logs))
	}
	for i, tag := range expected {
		if logs[i].Status != tag {
			t.Fatalf("expected log %d to be %s, got %s", i, tag, logs[i].Status)
		}
	}
}
