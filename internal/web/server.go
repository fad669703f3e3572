package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/vitos/token_staking/internal/domain"
	"github.com/vitos/token_staking/internal/usecase"
	"go.uber.org/zap"
)

// EventSource hands out live event subscriptions for /ws/events.
type EventSource interface {
	SubscribeChan(buffer int) (<-chan domain.Event, func())
}

// Approver lets a participant grant custody an allowance. Only ledgers that
// the daemon itself runs can offer it.
type Approver interface {
	Approve(owner, spender common.Address, amount *uint256.Int) error
}

type Server struct {
	router   *http.ServeMux
	server   *http.Server
	service  *usecase.StakingService
	events   EventSource
	auth     *Authenticator
	approver Approver
	metrics  http.Handler
	logger   *zap.Logger
}

func NewServer(
	port int,
	service *usecase.StakingService,
	events EventSource,
	auth *Authenticator,
	approver Approver,
	metrics http.Handler,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:   http.NewServeMux(),
		service:  service,
		events:   events,
		auth:     auth,
		approver: approver,
		metrics:  metrics,
		logger:   logger.Named("web"),
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	// Positions
	s.router.HandleFunc("GET /api/users/{address}", s.handleUserInfo)
	s.router.HandleFunc("GET /api/users/{address}/pending-rewards", s.handlePendingRewards)
	s.router.HandleFunc("GET /api/users/{address}/quote", s.handleQuoteWithdrawal)
	s.router.HandleFunc("GET /api/users/{address}/rate", s.handleEffectiveRate)

	// Pool
	s.router.HandleFunc("GET /api/config", s.handleConfig)
	s.router.HandleFunc("GET /api/tiers/{index}", s.handleTier)
	s.router.HandleFunc("GET /api/stats", s.handleStats)
	s.router.HandleFunc("GET /api/events", s.handleListEvents)
	s.router.HandleFunc("GET /api/activity", s.handleActivity)
	s.router.HandleFunc("GET /api/solvency", s.handleSolvency)

	// Transitions
	s.router.HandleFunc("POST /api/stake", s.authenticated(s.handleStake))
	s.router.HandleFunc("POST /api/withdraw", s.authenticated(s.handleWithdraw))
	s.router.HandleFunc("POST /api/withdraw-all", s.authenticated(s.handleWithdrawAll))

	// Admin
	s.router.HandleFunc("POST /api/admin/minimum-stake", s.authenticated(s.handleSetMinimumStake))
	s.router.HandleFunc("POST /api/admin/early-withdrawal-penalty", s.authenticated(s.handleSetPenalty))
	s.router.HandleFunc("POST /api/admin/owner", s.authenticated(s.handleTransferOwnership))

	// Token
	s.router.HandleFunc("GET /api/token/balance/{address}", s.handleTokenBalance)
	if s.approver != nil {
		s.router.HandleFunc("POST /api/token/approve", s.authenticated(s.handleApprove))
	}

	if s.events != nil {
		s.router.HandleFunc("GET /ws/events", s.handleEventStream)
	}
	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics)
	}
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
