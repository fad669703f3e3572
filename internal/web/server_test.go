package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/token_staking/internal/domain"
	"github.com/vitos/token_staking/internal/infrastructure/broker"
	"github.com/vitos/token_staking/internal/infrastructure/ledger"
	"github.com/vitos/token_staking/internal/infrastructure/storage"
	"github.com/vitos/token_staking/internal/usecase"
	"github.com/vitos/token_staking/internal/web"
	"go.uber.org/zap"
)

const secret = "test-secret"

var (
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	custody = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type testServer struct {
	handler http.Handler
	ledger  *ledger.MemoryLedger
	broker  *broker.Broker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mem := ledger.NewMemoryLedger(custody, zap.NewNop())
	require.NoError(t, mem.Mint(alice, uint256.NewInt(10_000)))
	require.NoError(t, mem.Approve(alice, custody, uint256.NewInt(10_000)))

	events := broker.New(zap.NewNop())
	svc := usecase.NewStakingService(
		storage.NewMemoryStore(),
		usecase.NewTransferExecutor(mem, custody),
		events,
		fixedClock{now: time.Unix(1_700_000_000, 0)},
		zap.NewNop(),
	)
	require.NoError(t, svc.Bootstrap(context.Background(), &domain.Config{
		Owner:                  owner,
		MinimumStakeAmount:     uint256.NewInt(10),
		AnnualRewardRate:       1000,
		LockPeriod:             30 * 86_400,
		EarlyWithdrawalPenalty: 500,
		TierThresholds:         [3]*uint256.Int{uint256.NewInt(1000), uint256.NewInt(5000), uint256.NewInt(10000)},
		TierRewardRates:        [3]uint64{200, 500, 1000},
	}))

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("staking_stakes_total 0\n"))
	})
	srv := web.NewServer(0, svc, events, web.NewAuthenticator(secret), mem, metrics, zap.NewNop())
	return &testServer{handler: srv.Handler(), ledger: mem, broker: events}
}

func token(t *testing.T, who common.Address) string {
	t.Helper()
	tok, err := web.IssueToken(secret, who, time.Hour, time.Now())
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, body string, as *common.Address) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, *as))
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec.Code, decoded
}

func TestStakeAndWithdrawFlow(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodPost, "/api/stake", `{"amount":"100"}`, &alice)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "100", body["total_staked"])
	assert.Equal(t, "active", body["state"])

	code, body = s.do(t, http.MethodGet, "/api/users/"+alice.Hex(), "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, alice.Hex(), body["participant"])
	assert.Equal(t, "100", body["total_staked"])

	code, body = s.do(t, http.MethodGet, "/api/users/"+alice.Hex()+"/quote?amount=40", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2", body["penalty"])
	assert.Equal(t, true, body["is_early"])

	code, body = s.do(t, http.MethodPost, "/api/withdraw", `{"amount":"40"}`, &alice)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "38", body["payout"])

	code, body = s.do(t, http.MethodPost, "/api/withdraw-all", ``, &alice)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "60", body["amount"])

	code, body = s.do(t, http.MethodGet, "/api/token/balance/"+owner.Hex(), "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "5", body["balance"])

	code, body = s.do(t, http.MethodGet, "/api/solvency", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["covered"])
	assert.Equal(t, "0", body["custody_balance"])
	assert.Equal(t, "0", body["owed_penalties"])

	code, body = s.do(t, http.MethodGet, "/api/stats", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0", body["total_staked"])
	assert.Equal(t, float64(1), body["participants"])
}

func TestErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/stake", `{"amount":"100"}`, &alice)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		as     *common.Address
		want   int
	}{
		{"no token", http.MethodPost, "/api/stake", `{"amount":"100"}`, nil, http.StatusUnauthorized},
		{"below minimum", http.MethodPost, "/api/stake", `{"amount":"1"}`, &alice, http.StatusUnprocessableEntity},
		{"missing amount", http.MethodPost, "/api/stake", `{}`, &alice, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/stake", `{"amount":"10","memo":"x"}`, &alice, http.StatusBadRequest},
		{"fractional amount", http.MethodPost, "/api/stake", `{"amount":"1.5"}`, &alice, http.StatusBadRequest},
		{"insufficient stake", http.MethodPost, "/api/withdraw", `{"amount":"101"}`, &alice, http.StatusUnprocessableEntity},
		{"not owner", http.MethodPost, "/api/admin/early-withdrawal-penalty", `{"bps":100}`, &alice, http.StatusForbidden},
		{"not owner with bad value", http.MethodPost, "/api/admin/early-withdrawal-penalty", `{"bps":20000}`, &alice, http.StatusForbidden},
		{"penalty above 100%", http.MethodPost, "/api/admin/early-withdrawal-penalty", `{"bps":10001}`, &owner, http.StatusUnprocessableEntity},
		{"missing bps", http.MethodPost, "/api/admin/early-withdrawal-penalty", `{}`, &owner, http.StatusBadRequest},
		{"zero new owner", http.MethodPost, "/api/admin/owner", `{"owner":"nope"}`, &owner, http.StatusBadRequest},
		{"bad owner from stranger", http.MethodPost, "/api/admin/owner", `{"owner":"nope"}`, &alice, http.StatusForbidden},
		{"bad address", http.MethodGet, "/api/users/0x123", "", nil, http.StatusBadRequest},
		{"tier out of range", http.MethodGet, "/api/tiers/3", "", nil, http.StatusBadRequest},
		{"tier not a number", http.MethodGet, "/api/tiers/x", "", nil, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/events?limit=0", "", nil, http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/api/stake", "", nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(t, tt.method, tt.path, tt.body, tt.as)
			assert.Equal(t, tt.want, code, body)
		})
	}
}

func TestLedgerFailureIsBadGateway(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/stake", `{"amount":"100"}`, &alice)

	s.ledger.Freeze(owner, true)
	code, body := s.do(t, http.MethodPost, "/api/withdraw", `{"amount":"100"}`, &alice)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, body["error"], "ledger transfer failed")

	_, body = s.do(t, http.MethodGet, "/api/users/"+alice.Hex(), "", nil)
	assert.Equal(t, "100", body["total_staked"])
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodPost, "/api/admin/minimum-stake", `{"amount":"50"}`, &owner)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "50", body["minimum_stake_amount"])

	code, body = s.do(t, http.MethodPost, "/api/admin/early-withdrawal-penalty", `{"bps":0}`, &owner)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(0), body["early_withdrawal_penalty_bps"])

	code, body = s.do(t, http.MethodPost, "/api/admin/owner", `{"owner":"`+alice.Hex()+`"}`, &owner)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, alice.Hex(), body["owner"])

	code, _ = s.do(t, http.MethodPost, "/api/admin/minimum-stake", `{"amount":"1"}`, &owner)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.do(t, http.MethodGet, "/api/tiers/1", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "5000", body["threshold"])
	assert.Equal(t, float64(500), body["reward_rate_bps"])

	req := httptest.NewRequest(http.MethodGet, "/api/events?limit=2", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []domain.EventRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventOwnershipTransferred, events[0].Type)
	assert.Equal(t, domain.EventEarlyWithdrawalPenaltyUpdated, events[1].Type)
}

func TestRateAndPending(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/stake", `{"amount":"1200"}`, &alice)

	code, body := s.do(t, http.MethodGet, "/api/users/"+alice.Hex()+"/rate", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["tier"])
	assert.Equal(t, float64(1200), body["effective_rate_bps"])
	assert.Equal(t, float64(1), body["next_tier"])
	assert.Equal(t, "3800", body["next_tier_shortfall"])

	code, body = s.do(t, http.MethodGet, "/api/users/"+alice.Hex()+"/pending-rewards", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0", body["pending_rewards"])
}

func TestEmptyEventList(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestApproveAndMetrics(t *testing.T) {
	s := newTestServer(t)
	bob := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	code, body := s.do(t, http.MethodPost, "/api/token/approve", `{"amount":"77"}`, &bob)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, custody.Hex(), body["spender"])
	assert.Equal(t, uint64(77), s.ledger.Allowance(bob, custody).Uint64())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "staking_stakes_total")
}

func TestEventStream(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events?address=" + alice.Hex()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.broker.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Admin events are about the owner and get filtered out.
	s.do(t, http.MethodPost, "/api/admin/early-withdrawal-penalty", `{"bps":100}`, &owner)
	s.do(t, http.MethodPost, "/api/stake", `{"amount":"100"}`, &alice)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type    string          `json:"type"`
		Subject string          `json:"subject"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, string(domain.EventStaked), msg.Type)
	assert.Equal(t, alice.Hex(), msg.Subject)
	assert.Contains(t, string(msg.Payload), `"amount":"100"`)
}

func TestActivityEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/stake", `{"amount":"100"}`, &alice)

	req := httptest.NewRequest(http.MethodGet, "/api/activity?window=1h", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Windows []struct {
			Window    string `json:"window"`
			Stakes    int    `json:"stakes"`
			Deposits  string `json:"deposits"`
			Direction string `json:"direction"`
		} `json:"windows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Windows, 1)
	assert.Equal(t, "1h0m0s", body.Windows[0].Window)
	assert.Equal(t, 1, body.Windows[0].Stakes)
	assert.Equal(t, "100", body.Windows[0].Deposits)
	assert.Equal(t, "in", body.Windows[0].Direction)

	code, _ := s.do(t, http.MethodGet, "/api/activity?window=soon", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}
