package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"faucetd/config"
	"faucetd/faucet"
	"faucetd/storage"
)

type stubSender struct {
	balance faucet.Balance
}

func (s *stubSender) Send(ctx context.Context, recipient string) (faucet.TxResult, error) {
	return faucet.TxResult{Hash: "HASH"}, nil
}

func (s *stubSender) Balance(ctx context.Context) (faucet.Balance, error) {
	return s.balance, nil
}

func newTestHandler(t *testing.T) (http.Handler, *faucet.StatusTracker) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "faucet"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	chains := []config.Chain{{
		Name:   "chainA",
		Family: config.FamilyCosmos,
		Prefix: "cosmos",
		Limits: config.Limits{Address: 1, IP: 2},
	}}
	tracker := faucet.NewStatusTracker(store, nil)
	service := faucet.NewService(faucet.ServiceConfig{
		Chains:  chains,
		Limiter: faucet.NewFrequencyLimiter(store, 24*time.Hour, nil),
		Tracker: tracker,
		Queue:   faucet.NewPayoutQueue(),
		Senders: map[string]faucet.Sender{"chainA": &stubSender{balance: faucet.Balance{Amount: "42", Denom: "uatom"}}},
		Window:  24 * time.Hour,
	})
	return NewServer(service, nil, nil), tracker
}

func doRequest(t *testing.T, handler http.Handler, path, ip string) (int, response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if ip != "" {
		req.Header.Set("X-Real-IP", ip)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	var body response
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	return res.Code, body
}

func TestSendEnqueues(t *testing.T) {
	handler, _ := newTestHandler(t)

	code, body := doRequest(t, handler, "/send/chainA/cosmos1xyz", "1.2.3.4")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 0, body.Code)
	require.Contains(t, body.Message, "enqueued")
}

func TestSendRateLimitedEchoesLimits(t *testing.T) {
	handler, _ := newTestHandler(t)

	_, first := doRequest(t, handler, "/send/chainA/cosmos1xyz", "1.2.3.4")
	require.Equal(t, 0, first.Code)

	code, second := doRequest(t, handler, "/send/chainA/cosmos1xyz", "1.2.3.4")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, second.Code)
	require.Contains(t, second.Message, "1 per address")
	require.Contains(t, second.Message, "2 per ip")
}

func TestSendUnsupportedChain(t *testing.T) {
	handler, _ := newTestHandler(t)

	code, body := doRequest(t, handler, "/send/ghostchain/cosmos1xyz", "1.2.3.4")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, 1, body.Code)
}

func TestSendInvalidPrefix(t *testing.T) {
	handler, _ := newTestHandler(t)

	code, body := doRequest(t, handler, "/send/chainA/osmo1xyz", "1.2.3.4")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, body.Code)
	require.Equal(t, "osmo1xyz", body.Recipient)
}

func TestStatusFlow(t *testing.T) {
	handler, tracker := newTestHandler(t)

	_, body := doRequest(t, handler, "/status/cosmos1xyz", "1.2.3.4")
	require.Equal(t, "not found", body.Status)

	_, _ = doRequest(t, handler, "/send/chainA/cosmos1xyz", "1.2.3.4")
	_, body = doRequest(t, handler, "/status/cosmos1xyz", "1.2.3.4")
	require.Equal(t, "pending", body.Status)

	// Simulate the dispatcher completing the payout.
	require.NoError(t, tracker.MarkCompleted("cosmos1xyz", "HASH"))

	_, body = doRequest(t, handler, "/status/cosmos1xyz", "1.2.3.4")
	require.Equal(t, "completed", body.Status)
	require.Equal(t, "HASH", body.TxHash)

	// The poll acknowledged the record; the next one observes cleared.
	_, body = doRequest(t, handler, "/status/cosmos1xyz", "1.2.3.4")
	require.Equal(t, "cleared", body.Status)
}

func TestAlreadyPaidReturns400(t *testing.T) {
	handler, tracker := newTestHandler(t)
	require.NoError(t, tracker.MarkCompleted("cosmos1abc", "HASH"))

	code, body := doRequest(t, handler, "/send/chainA/cosmos1abc", "9.9.9.9")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, 1, body.Code)
}

func TestBalanceEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)

	code, body := doRequest(t, handler, "/balance/chainA", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "42", body.Amount)
	require.Equal(t, "uatom", body.Denom)

	code, _ = doRequest(t, handler, "/balance/ghostchain", "")
	require.Equal(t, http.StatusNotFound, code)
}

func TestHealthz(t *testing.T) {
	handler, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
}
