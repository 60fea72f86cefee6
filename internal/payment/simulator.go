package payment

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/google/uuid"

	apperrors "storefront/internal/errors"
)

type simulatedTx struct {
	req       CreateRequest
	committed *CommitResponse
}

// Simulator is an in-process gateway for local runs and tests. Its URL points straight
// back at the return URL so following it completes the payment.
type Simulator struct {
	mu       sync.Mutex
	txs      map[string]*simulatedTx
	declined map[string]int
	failNext error
}

func NewSimulator() *Simulator {
	return &Simulator{
		txs:      map[string]*simulatedTx{},
		declined: map[string]int{},
	}
}

// Decline makes the next commit of token answer with responseCode.
func (s *Simulator) Decline(token string, responseCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.declined[token] = responseCode
}

// FailNext makes the next call return err as a transport failure.
func (s *Simulator) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Simulator) takeFailure(op string) error {
	if s.failNext == nil {
		return nil
	}
	err := s.failNext
	s.failNext = nil
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewGatewayTimeoutError(op, err)
	}
	return apperrors.NewGatewayError(op, err)
}

func (s *Simulator) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("create"); err != nil {
		return nil, err
	}

	token := uuid.NewString()
	s.txs[token] = &simulatedTx{req: req}

	redirect := req.ReturnURL
	if u, err := url.Parse(req.ReturnURL); err == nil {
		q := u.Query()
		q.Set("token_ws", token)
		u.RawQuery = q.Encode()
		redirect = u.String()
	}

	return &CreateResponse{Token: token, URL: redirect}, nil
}

func (s *Simulator) Commit(ctx context.Context, token string) (*CommitResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("commit"); err != nil {
		return nil, err
	}

	tx, ok := s.txs[token]
	if !ok {
		return nil, apperrors.NewGatewayError("commit", errors.New("unknown token"))
	}
	if tx.committed != nil {
		resp := *tx.committed
		return &resp, nil
	}

	resp := &CommitResponse{
		BuyOrder:          tx.req.BuyOrder,
		SessionID:         tx.req.SessionID,
		Amount:            tx.req.Amount,
		Status:            "AUTHORIZED",
		ResponseCode:      ResponseCodeApproved,
		AuthorizationCode: "1213",
	}
	if code, declined := s.declined[token]; declined {
		resp.Status = "FAILED"
		resp.ResponseCode = code
		resp.AuthorizationCode = ""
		delete(s.declined, token)
	}
	tx.committed = resp

	out := *resp
	return &out, nil
}

var _ Gateway = (*Simulator)(nil)
