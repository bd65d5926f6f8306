package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Recorder observes terminal transitions.
type Recorder interface {
	PaymentFinished(state, reason string)
}

// ConfirmQueue schedules a background status poll for a pending session.
type ConfirmQueue interface {
	EnqueuePaymentConfirm(ctx context.Context, sessionID string) error
}

// Dependencies are the collaborators of Service. Dial, Metrics and Confirm
// are optional.
type Dependencies struct {
	Store   Store
	Configs *ConfigResolver
	Dial    func(Config) Gateway
	Metrics Recorder
	Confirm ConfirmQueue
}

// Service drives payment sessions through the gateway state machine.
type Service struct {
	deps     Dependencies
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
	newTxnID func() string
}

// NewService constructs Service.
func NewService(deps Dependencies, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Dial == nil {
		deps.Dial = func(cfg Config) Gateway { return NewClient(cfg) }
	}
	return &Service{
		deps:     deps,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
		newTxnID: func() string { return "AU" + strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// SetConfirmQueue attaches the background poll queue after construction.
func (s *Service) SetConfirmQueue(q ConfirmQueue) {
	s.deps.Confirm = q
}

func (s *Service) gateway(ctx context.Context) (Gateway, Config, error) {
	cfg, err := s.deps.Configs.Resolve(ctx, nil)
	if err != nil {
		return nil, Config{}, err
	}
	return s.deps.Dial(cfg), cfg, nil
}

// Get returns one session.
func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	return s.deps.Store.Get(ctx, id)
}

// Initiate opens a session and asks the gateway for a payment page. Gateway
// and configuration failures leave the session failed with the error text
// as its reason; only storage errors are returned.
func (s *Service) Initiate(ctx context.Context, actorID string, in InitiateInput) (Session, error) {
	if err := s.validate.Struct(in); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	amount := in.Amount.Round(2)
	if !amount.IsPositive() {
		return Session{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	return s.start(ctx, Session{
		Reference: strings.TrimSpace(in.Reference),
		Amount:    amount,
		Phone:     strings.TrimSpace(in.Phone),
		CreatedBy: actorID,
	})
}

// Retry starts a new session for a failed one. The failed session is kept.
func (s *Service) Retry(ctx context.Context, actorID, id string) (Session, error) {
	prev, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if prev.State != StateFailed {
		return Session{}, ErrNotRetryable
	}
	return s.start(ctx, Session{
		Reference: prev.Reference,
		Amount:    prev.Amount,
		Phone:     prev.Phone,
		RetryOf:   prev.ID,
		CreatedBy: actorID,
	})
}

func (s *Service) start(ctx context.Context, draft Session) (Session, error) {
	draft.TransactionID = s.newTxnID()
	draft.State = StateInput
	sess, err := s.deps.Store.Insert(ctx, draft)
	if err != nil {
		return Session{}, err
	}
	if sess, err = s.advance(ctx, sess, StateInitiating, ""); err != nil {
		return Session{}, err
	}

	gw, _, err := s.gateway(ctx)
	if err != nil {
		return s.advance(ctx, sess, StateFailed, err.Error())
	}
	res, err := gw.Initiate(ctx, PayRequest{
		TransactionID: sess.TransactionID,
		UserID:        userID(sess),
		Amount:        sess.Paise(),
		Phone:         sess.Phone,
	})
	if err != nil {
		reason := res.Message
		if reason == "" {
			reason = err.Error()
		}
		s.logger.Warn("payment initiate failed", slog.String("session", sess.ID), slog.Any("error", err))
		return s.advance(ctx, sess, StateFailed, reason)
	}
	sess.RedirectURL = res.RedirectURL
	if sess, err = s.advance(ctx, sess, StatePending, ""); err != nil {
		return Session{}, err
	}
	if s.deps.Confirm != nil && sess.State == StatePending {
		if err := s.deps.Confirm.EnqueuePaymentConfirm(ctx, sess.ID); err != nil {
			s.logger.Warn("enqueue payment confirm", slog.String("session", sess.ID), slog.Any("error", err))
		}
	}
	return sess, nil
}

func userID(sess Session) string {
	if sess.CreatedBy != "" {
		return sess.CreatedBy
	}
	return "counter"
}

// advance moves sess to the next state with a compare-and-set on its current
// state. When another writer got there first the stored session is returned
// unchanged, so a terminal state is entered exactly once.
func (s *Service) advance(ctx context.Context, sess Session, to State, reason string) (Session, error) {
	return s.transition(ctx, sess, to, reason, 0)
}

func (s *Service) transition(ctx context.Context, sess Session, to State, reason string, addPolls int) (Session, error) {
	from := sess.State
	if from.Terminal() {
		return sess, nil
	}
	if !CanTransition(from, to) {
		return Session{}, fmt.Errorf("%w: %s to %s", ErrTransition, from, to)
	}
	next := sess
	next.State = to
	next.Reason = reason
	if to.Terminal() {
		at := s.now().UTC()
		next.FinishedAt = &at
	}
	stored, ok, err := s.deps.Store.Transition(ctx, from, next, addPolls)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return s.deps.Store.Get(ctx, sess.ID)
	}
	if to.Terminal() {
		if s.deps.Metrics != nil {
			s.deps.Metrics.PaymentFinished(string(to), metricReason(to, reason))
		}
		s.logger.Info("payment finished",
			slog.String("session", stored.ID),
			slog.String("state", string(to)),
			slog.String("reason", reason))
	}
	return stored, nil
}

func metricReason(to State, reason string) string {
	switch {
	case to == StateSuccess:
		return "paid"
	case reason == ReasonTimeout:
		return "timeout"
	default:
		return "gateway"
	}
}

// Poll asks the gateway once for the status of a pending session. Every
// call counts toward the session's poll total, including failed ones.
func (s *Service) Poll(ctx context.Context, id string) (Session, error) {
	sess, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.State != StatePending {
		return sess, nil
	}
	var res StatusResult
	gw, _, statusErr := s.gateway(ctx)
	if statusErr == nil {
		res, statusErr = gw.Status(ctx, sess.TransactionID)
	}
	to := StatePending
	reason := ""
	if statusErr == nil {
		to = res.Outcome()
		if to == StateFailed {
			reason = res.Message
			if reason == "" {
				reason = res.Code
			}
		}
	}
	next, err := s.transition(ctx, sess, to, reason, 1)
	if err != nil {
		return Session{}, err
	}
	if statusErr != nil {
		return next, statusErr
	}
	return next, nil
}

// Expire fails a session whose polls ran out. It is a no-op for sessions
// already finished.
func (s *Service) Expire(ctx context.Context, id string) (Session, error) {
	sess, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.State.Terminal() {
		return sess, nil
	}
	return s.advance(ctx, sess, StateFailed, ReasonTimeout)
}

type callbackBody struct {
	Response string `json:"response"`
}

// HandleCallback applies a signed server-to-server notification.
func (s *Service) HandleCallback(ctx context.Context, signature string, body []byte) (Session, error) {
	var cb callbackBody
	if err := json.Unmarshal(body, &cb); err != nil || cb.Response == "" {
		return Session{}, fmt.Errorf("%w: malformed callback", ErrInvalidInput)
	}
	cfg, err := s.deps.Configs.Resolve(ctx, nil)
	if err != nil {
		return Session{}, err
	}
	if !VerifyCallback(signature, cb.Response, cfg.SaltKey, cfg.SaltIndex) {
		return Session{}, ErrBadSignature
	}
	raw, err := base64.StdEncoding.DecodeString(cb.Response)
	if err != nil {
		return Session{}, fmt.Errorf("%w: callback response is not base64", ErrInvalidInput)
	}
	var resp gatewayResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Session{}, fmt.Errorf("%w: callback response: %v", ErrInvalidInput, err)
	}
	var data statusData
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return Session{}, fmt.Errorf("%w: callback data: %v", ErrInvalidInput, err)
		}
	}
	if data.MerchantTransactionID == "" {
		return Session{}, fmt.Errorf("%w: callback without transaction id", ErrInvalidInput)
	}
	sess, err := s.deps.Store.GetByTransaction(ctx, data.MerchantTransactionID)
	if err != nil {
		return Session{}, err
	}
	res := StatusResult{Code: resp.Code, Message: resp.Message, State: data.State, TransactionID: data.MerchantTransactionID, Amount: data.Amount}
	to := res.Outcome()
	if to == StatePending || sess.State != StatePending {
		return sess, nil
	}
	if to == StateSuccess && res.Amount != 0 && res.Amount != sess.Paise() {
		s.logger.Error("payment callback amount mismatch",
			slog.String("session", sess.ID),
			slog.Int64("expected", sess.Paise()),
			slog.Int64("got", res.Amount))
		return sess, fmt.Errorf("%w: amount mismatch", ErrInvalidInput)
	}
	reason := ""
	if to == StateFailed {
		reason = res.Message
	}
	return s.advance(ctx, sess, to, reason)
}
