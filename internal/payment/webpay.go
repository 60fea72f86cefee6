package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "storefront/internal/errors"
)

const transactionsPath = "/rswebpaytransaction/api/webpay/v1.2/transactions"

type WebpayConfig struct {
	BaseURL      string
	CommerceCode string
	APIKey       string
	Timeout      time.Duration
}

// WebpayClient speaks the Webpay Plus REST API.
type WebpayClient struct {
	cfg  WebpayConfig
	http *http.Client
}

func NewWebpayClient(cfg WebpayConfig) *WebpayClient {
	return &WebpayClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type webpayCreateBody struct {
	BuyOrder  string `json:"buy_order"`
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
	ReturnURL string `json:"return_url"`
}

type webpayCommitBody struct {
	VCI               string `json:"vci"`
	Amount            int64  `json:"amount"`
	Status            string `json:"status"`
	BuyOrder          string `json:"buy_order"`
	SessionID         string `json:"session_id"`
	AuthorizationCode string `json:"authorization_code"`
	PaymentTypeCode   string `json:"payment_type_code"`
	ResponseCode      int    `json:"response_code"`
}

type webpayErrorBody struct {
	ErrorMessage string `json:"error_message"`
}

func (c *WebpayClient) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	body, err := json.Marshal(webpayCreateBody{
		BuyOrder:  req.BuyOrder,
		SessionID: req.SessionID,
		Amount:    req.Amount,
		ReturnURL: req.ReturnURL,
	})
	if err != nil {
		return nil, apperrors.NewGatewayError("create", err)
	}

	var out CreateResponse
	if err := c.do(ctx, "create", http.MethodPost, c.cfg.BaseURL+transactionsPath, body, &out); err != nil {
		return nil, err
	}
	if out.Token == "" || out.URL == "" {
		return nil, apperrors.NewGatewayError("create", errors.New("response lacks token or url"))
	}
	return &out, nil
}

func (c *WebpayClient) Commit(ctx context.Context, token string) (*CommitResponse, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperrors.NewValidationError("token is required", apperrors.ValidationDetail{
			Field:   "token",
			Message: "token must not be empty",
		})
	}

	endpoint := c.cfg.BaseURL + transactionsPath + "/" + url.PathEscape(token)

	var out webpayCommitBody
	if err := c.do(ctx, "commit", http.MethodPut, endpoint, nil, &out); err != nil {
		return nil, err
	}

	return &CommitResponse{
		BuyOrder:          out.BuyOrder,
		SessionID:         out.SessionID,
		Amount:            out.Amount,
		Status:            out.Status,
		ResponseCode:      out.ResponseCode,
		AuthorizationCode: out.AuthorizationCode,
	}, nil
}

func (c *WebpayClient) do(ctx context.Context, op, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return apperrors.NewGatewayError(op, err)
	}
	req.Header.Set("Tbk-Api-Key-Id", c.cfg.CommerceCode)
	req.Header.Set("Tbk-Api-Key-Secret", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return apperrors.NewGatewayTimeoutError(op, err)
		}
		return apperrors.NewGatewayError(op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(err) {
			return apperrors.NewGatewayTimeoutError(op, err)
		}
		return apperrors.NewGatewayError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e webpayErrorBody
		_ = json.Unmarshal(payload, &e)
		msg := e.ErrorMessage
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return apperrors.NewGatewayError(op, fmt.Errorf("http %d: %s", resp.StatusCode, msg))
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return apperrors.NewGatewayError(op, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var _ Gateway = (*WebpayClient)(nil)
