// Package api exposes the valuation and point ledger operations over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spigell/hh-market/internal/ledger"
	"github.com/spigell/hh-market/internal/market"
	"github.com/spigell/hh-market/internal/queue"
	"github.com/spigell/hh-market/internal/valuation"
)

const defaultMaxDocumentSize = 10 << 20

type Valuator interface {
	Valuate(ctx context.Context, resumeID uint, item valuation.HardItem, creds valuation.Credentials) (*market.Valuation, error)
	Revaluate(ctx context.Context, resumeID uint, upd valuation.Update) (*market.Valuation, error)
}

type Ledger interface {
	SelectCandidate(ctx context.Context, payerID, resumeID uint, sel ledger.Selection) (*market.RecruitResume, error)
	PurchasePoints(ctx context.Context, payerID, packageID uint, quantity int, paymentRef string) (*market.TransactionHistory, error)
	RequestDraw(ctx context.Context, collaboratorID uint, amount decimal.Decimal) (*market.DrawHistory, error)
}

type Publisher interface {
	Publish(ctx context.Context, job queue.ValuationJob) error
}

type Deps struct {
	Valuator  Valuator
	Ledger    Ledger
	Publisher Publisher
	Logger    *zap.Logger
	// MaxDocumentSize caps uploaded documents in bytes.
	MaxDocumentSize int64
}

type Server struct {
	valuator        Valuator
	ledger          Ledger
	publisher       Publisher
	logger          *zap.Logger
	maxDocumentSize int64
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(deps Deps) *gin.Engine {
	s := &Server{
		valuator:        deps.Valuator,
		ledger:          deps.Ledger,
		publisher:       deps.Publisher,
		logger:          deps.Logger,
		maxDocumentSize: deps.MaxDocumentSize,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.maxDocumentSize <= 0 {
		s.maxDocumentSize = defaultMaxDocumentSize
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestID(), s.accessLog())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := router.Group("/", s.authenticate())

	resumes := authed.Group("/resumes/:id")
	resumes.POST("/valuation", requireRole(market.RoleCollaborator, market.RoleAdmin), s.valuate)
	resumes.PATCH("/valuation", requireRole(market.RoleCollaborator, market.RoleAdmin), s.revaluate)
	resumes.POST("/document", requireRole(market.RoleCollaborator, market.RoleAdmin), s.uploadDocument)
	resumes.POST("/select", requireRole(market.RoleRecruiter), s.selectCandidate)

	authed.POST("/points/purchase", requireRole(market.RoleRecruiter), s.purchasePoints)
	authed.POST("/draws", requireRole(market.RoleCollaborator), s.requestDraw)

	return router
}

// Run serves router on addr until ctx is cancelled.
func Run(ctx context.Context, addr string, router http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down http server")
	return srv.Shutdown(shutdownCtx)
}
