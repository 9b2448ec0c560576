package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spigell/hh-market/internal/ai"
	"github.com/spigell/hh-market/internal/ledger"
	"github.com/spigell/hh-market/internal/logger"
	"github.com/spigell/hh-market/internal/market"
	"github.com/spigell/hh-market/internal/queue"
	"github.com/spigell/hh-market/internal/valuation"
)

type documentPayload struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

type valuationRequest struct {
	Level         string               `json:"level"`
	CurrentSalary *decimal.Decimal     `json:"current_salary"`
	Document      *documentPayload     `json:"document"`
	Education     []market.Education   `json:"education"`
	Certificates  []market.Certificate `json:"certificates"`
}

type revaluationRequest struct {
	Level         string                `json:"level"`
	CurrentSalary *decimal.Decimal      `json:"current_salary"`
	Document      *documentPayload      `json:"document"`
	Education     *[]market.Education   `json:"education"`
	Certificates  *[]market.Certificate `json:"certificates"`
}

type selectRequest struct {
	Package market.Package `json:"package" binding:"required"`
	JobID   uint           `json:"job_id"`
}

type purchaseRequest struct {
	PackageID        uint   `json:"package_id" binding:"required"`
	Quantity         int    `json:"quantity" binding:"required"`
	PaymentReference string `json:"payment_reference" binding:"required"`
}

type drawRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// hardItem picks the level or salary variant. Nil means neither was sent.
func hardItem(level string, salary *decimal.Decimal, doc *documentPayload) (valuation.HardItem, error) {
	level = strings.TrimSpace(level)

	switch {
	case level != "" && salary != nil:
		return nil, fmt.Errorf("%w: level and current_salary are mutually exclusive", market.ErrInvalidInput)
	case level != "":
		return valuation.LevelItem{Level: level}, nil
	case salary != nil:
		if !salary.IsPositive() {
			return nil, fmt.Errorf("%w: current_salary must be positive", market.ErrInvalidInput)
		}
		if doc == nil || len(doc.Data) == 0 {
			return nil, fmt.Errorf("%w: salary valuation needs the resume document", market.ErrInvalidInput)
		}
		return valuation.SalaryItem{
			Amount:   *salary,
			Document: ai.Document{Name: doc.Name, MIMEType: doc.MIMEType, Data: doc.Data},
		}, nil
	default:
		return nil, nil
	}
}

func resumeID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid resume id", market.ErrInvalidInput)
	}
	return uint(id), nil
}

func bindJSON(c *gin.Context, target any) error {
	if err := c.ShouldBindJSON(target); err != nil {
		return fmt.Errorf("%w: %s", market.ErrInvalidInput, err.Error())
	}
	return nil
}

func (s *Server) valuate(c *gin.Context) {
	id, err := resumeID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	var req valuationRequest
	if err := bindJSON(c, &req); err != nil {
		s.writeError(c, err)
		return
	}

	item, err := hardItem(req.Level, req.CurrentSalary, req.Document)
	if err != nil {
		s.writeError(c, err)
		return
	}

	v, err := s.valuator.Valuate(c.Request.Context(), id, item, valuation.Credentials{
		Education:    req.Education,
		Certificates: req.Certificates,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, v)
}

func (s *Server) revaluate(c *gin.Context) {
	id, err := resumeID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	var req revaluationRequest
	if err := bindJSON(c, &req); err != nil {
		s.writeError(c, err)
		return
	}

	item, err := hardItem(req.Level, req.CurrentSalary, req.Document)
	if err != nil {
		s.writeError(c, err)
		return
	}

	v, err := s.valuator.Revaluate(c.Request.Context(), id, valuation.Update{
		HardItem:     item,
		Education:    req.Education,
		Certificates: req.Certificates,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, v)
}

func (s *Server) uploadDocument(c *gin.Context) {
	id, err := resumeID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if s.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "document valuation is disabled"})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		s.writeError(c, fmt.Errorf("%w: file is required", market.ErrInvalidInput))
		return
	}
	if header.Size > s.maxDocumentSize {
		s.writeError(c, fmt.Errorf("%w: file exceeds %d bytes", market.ErrInvalidInput, s.maxDocumentSize))
		return
	}

	file, err := header.Open()
	if err != nil {
		s.writeError(c, fmt.Errorf("open uploaded file: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxDocumentSize+1))
	if err != nil {
		s.writeError(c, fmt.Errorf("read uploaded file: %w", err))
		return
	}
	if len(data) == 0 || int64(len(data)) > s.maxDocumentSize {
		s.writeError(c, fmt.Errorf("%w: file must be between 1 and %d bytes", market.ErrInvalidInput, s.maxDocumentSize))
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	job := queue.NewValuationJob(id, ai.Document{Name: header.Filename, MIMEType: mimeType, Data: data}, c.GetString(ctxRequestID))
	if err := s.publisher.Publish(c.Request.Context(), job); err != nil {
		s.writeError(c, fmt.Errorf("queue valuation job: %w", err))
		return
	}

	actor, _ := actorFrom(c)
	logger.WithActor(s.logger, actor.ID, string(actor.Role), c.GetString(ctxRequestID)).
		Info("document queued for valuation", zap.Uint("resume_id", id), zap.String("job_id", job.ID))

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": "queued"})
}

func (s *Server) selectCandidate(c *gin.Context) {
	id, err := resumeID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	var req selectRequest
	if err := bindJSON(c, &req); err != nil {
		s.writeError(c, err)
		return
	}

	actor, _ := actorFrom(c)
	rr, err := s.ledger.SelectCandidate(c.Request.Context(), actor.ID, id, ledger.Selection{
		Package: market.Package(strings.ToLower(string(req.Package))),
		JobID:   req.JobID,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rr)
}

func (s *Server) purchasePoints(c *gin.Context) {
	var req purchaseRequest
	if err := bindJSON(c, &req); err != nil {
		s.writeError(c, err)
		return
	}

	actor, _ := actorFrom(c)
	history, err := s.ledger.PurchasePoints(c.Request.Context(), actor.ID, req.PackageID, req.Quantity, req.PaymentReference)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, history)
}

func (s *Server) requestDraw(c *gin.Context) {
	var req drawRequest
	if err := bindJSON(c, &req); err != nil {
		s.writeError(c, err)
		return
	}

	actor, _ := actorFrom(c)
	draw, err := s.ledger.RequestDraw(c.Request.Context(), actor.ID, req.Amount)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, draw)
}
