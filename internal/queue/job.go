// Package queue carries resume documents from the API to the valuation
// worker over RabbitMQ.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/spigell/hh-market/internal/ai"
)

const DefaultQueueName = "valuation_queue"

// ValuationJob asks the worker to parse a resume document and valuate it.
type ValuationJob struct {
	ID         string    `json:"id"`
	ResumeID   uint      `json:"resume_id"`
	RequestID  string    `json:"request_id,omitempty"`
	Name       string    `json:"name"`
	MIMEType   string    `json:"mime_type"`
	Data       []byte    `json:"data"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func NewValuationJob(resumeID uint, doc ai.Document, requestID string) ValuationJob {
	return ValuationJob{
		ID:         uuid.NewString(),
		ResumeID:   resumeID,
		RequestID:  requestID,
		Name:       doc.Name,
		MIMEType:   doc.MIMEType,
		Data:       doc.Data,
		EnqueuedAt: time.Now().UTC(),
	}
}

func (j ValuationJob) Document() ai.Document {
	return ai.Document{Name: j.Name, MIMEType: j.MIMEType, Data: j.Data}
}
