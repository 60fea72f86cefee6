package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/errors"
)

func newTestClient(url string, timeout time.Duration) *WebpayClient {
	return NewWebpayClient(WebpayConfig{
		BaseURL:      url,
		CommerceCode: "597055555532",
		APIKey:       "secret-key",
		Timeout:      timeout,
	})
}

func TestWebpayClient_Create(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, transactionsPath, r.URL.Path)
		assert.Equal(t, "597055555532", r.Header.Get("Tbk-Api-Key-Id"))
		assert.Equal(t, "secret-key", r.Header.Get("Tbk-Api-Key-Secret"))

		var body webpayCreateBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "P-10-1718000000", body.BuyOrder)
		assert.Equal(t, int64(15990), body.Amount)

		_ = json.NewEncoder(w).Encode(CreateResponse{Token: "tok-1", URL: "https://gateway/pay"})
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL, time.Second).Create(context.Background(), CreateRequest{
		BuyOrder:  "P-10-1718000000",
		SessionID: "S-c-1718000000",
		Amount:    15990,
		ReturnURL: "https://shop/return",
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", resp.Token)
	assert.Equal(t, "https://gateway/pay", resp.URL)
}

func TestWebpayClient_Commit_Approved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, transactionsPath+"/tok-2", r.URL.Path)
		_, _ = w.Write([]byte(`{"vci":"TSY","amount":15990,"status":"AUTHORIZED","buy_order":"P-10-1718000000",
			"session_id":"S-c-1718000000","authorization_code":"1213","payment_type_code":"VN","response_code":0}`))
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL, time.Second).Commit(context.Background(), "tok-2")
	require.NoError(t, err)
	assert.True(t, resp.Approved())
	assert.Equal(t, "P-10-1718000000", resp.BuyOrder)
	assert.Equal(t, int64(15990), resp.Amount)
}

func TestWebpayClient_Commit_Declined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"FAILED","buy_order":"P-10-1","response_code":-1}`))
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL, time.Second).Commit(context.Background(), "tok-3")
	require.NoError(t, err)
	assert.False(t, resp.Approved())
	assert.Equal(t, -1, resp.ResponseCode)
}

func TestWebpayClient_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error_message":"Transaction already locked by another process"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, time.Second).Commit(context.Background(), "tok-4")
	ge, ok := errors.IsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, "commit", ge.Op)
	assert.False(t, ge.Timeout)
	assert.Contains(t, err.Error(), "already locked")
}

func TestWebpayClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	_, err := newTestClient(server.URL, 50*time.Millisecond).Commit(context.Background(), "tok-5")
	ge, ok := errors.IsGatewayError(err)
	require.True(t, ok)
	assert.True(t, ge.Timeout)
}

func TestWebpayClient_Commit_EmptyToken(t *testing.T) {
	_, err := newTestClient("http://unused", time.Second).Commit(context.Background(), " ")
	_, ok := errors.IsValidationError(err)
	assert.True(t, ok)
}
