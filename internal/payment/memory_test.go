package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type memStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	seq      int
	finished map[string]int
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]Session{}, finished: map[string]int{}}
}

func (m *memStore) Insert(_ context.Context, s Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	s.ID = fmt.Sprintf("pay-%02d", m.seq)
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *memStore) GetByTransaction(_ context.Context, txnID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TransactionID == txnID {
			return s, nil
		}
	}
	return Session{}, ErrNotFound
}

func (m *memStore) Transition(_ context.Context, from State, next Session, addPolls int) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[next.ID]
	if !ok {
		return Session{}, false, ErrNotFound
	}
	if cur.State != from {
		return Session{}, false, nil
	}
	next.Polls = cur.Polls + addPolls
	next.UpdatedAt = time.Now().UTC()
	m.sessions[next.ID] = next
	if next.State.Terminal() {
		m.finished[next.ID]++
	}
	return next, true, nil
}

func (m *memStore) ListOpen(_ context.Context, limit int) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if s.State == StateInitiating || s.State == StatePending {
			out = append(out, s)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) put(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

type fakeGateway struct {
	mu          sync.Mutex
	initRes     PayResult
	initErr     error
	initCalls   []PayRequest
	statuses    []StatusResult
	statusErr   error
	statusCalls int
	// onStatus runs once, outside the lock, after the first status call.
	onStatus func()
}

func (g *fakeGateway) Initiate(_ context.Context, req PayRequest) (PayResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls = append(g.initCalls, req)
	if g.initErr != nil {
		return g.initRes, g.initErr
	}
	if g.initRes.RedirectURL == "" {
		return PayResult{Code: "PAYMENT_INITIATED", RedirectURL: "https://pay.test/" + req.TransactionID}, nil
	}
	return g.initRes, nil
}

func (g *fakeGateway) Status(_ context.Context, txnID string) (StatusResult, error) {
	res, hook, err := g.status(txnID)
	if hook != nil {
		hook()
	}
	return res, err
}

func (g *fakeGateway) status(txnID string) (StatusResult, func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++
	hook := g.onStatus
	g.onStatus = nil
	if g.statusErr != nil {
		return StatusResult{}, hook, g.statusErr
	}
	if len(g.statuses) == 0 {
		return StatusResult{Code: "PAYMENT_PENDING", TransactionID: txnID}, hook, nil
	}
	res := g.statuses[0]
	if len(g.statuses) > 1 {
		g.statuses = g.statuses[1:]
	}
	res.TransactionID = txnID
	return res, hook, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusCalls
}

type recorder struct {
	mu       sync.Mutex
	finished []string
}

func (r *recorder) PaymentFinished(state, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, state+":"+reason)
}

type memConfirm struct {
	ids []string
	err error
}

func (q *memConfirm) EnqueuePaymentConfirm(_ context.Context, id string) error {
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, id)
	return nil
}

type memSettings map[string]Config

func (m memSettings) Decode(_ context.Context, key string, dst any) (bool, error) {
	cfg, ok := m[key]
	if !ok {
		return false, nil
	}
	out, ok := dst.(*Config)
	if !ok {
		return false, errors.New("unexpected destination")
	}
	*out = cfg
	return true, nil
}

var testConfig = Config{MerchantID: "MERCHANTUAT", SaltKey: "salt-key", SaltIndex: "1", BaseURL: "https://gw.test/"}

type fixture struct {
	svc     *Service
	store   *memStore
	gw      *fakeGateway
	metrics *recorder
	confirm *memConfirm
}

func newFixture() fixture {
	f := fixture{store: newMemStore(), gw: &fakeGateway{}, metrics: &recorder{}, confirm: &memConfirm{}}
	f.svc = NewService(Dependencies{
		Store:   f.store,
		Configs: NewConfigResolver(nil, testConfig),
		Dial:    func(Config) Gateway { return f.gw },
		Metrics: f.metrics,
		Confirm: f.confirm,
	}, nil)
	return f
}
