// Package events publishes import lifecycle events to NATS
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/dshomebg/dshome-docker-sub001/internal/models"
)

const (
	SubjectImportCompleted = "import.completed"
	SubjectImportFailed    = "import.failed"
)

// ImportEvent is the payload of every import.* message
type ImportEvent struct {
	EventID            string    `json:"event_id"`
	EventType          string    `json:"event_type"`
	TenantID           string    `json:"tenant_id"`
	SessionID          string    `json:"session_id"`
	FileName           string    `json:"file_name,omitempty"`
	Success            bool      `json:"success"`
	Cancelled          bool      `json:"cancelled,omitempty"`
	TotalRows          int       `json:"total_rows"`
	ProcessedRows      int       `json:"processed_rows"`
	SkippedRows        int       `json:"skipped_rows"`
	UpdatedPrices      int       `json:"updated_prices"`
	UpdatedInventories int       `json:"updated_inventories"`
	ErrorCount         int       `json:"error_count"`
	Failure            string    `json:"failure,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher sends import events. A nil *Publisher drops every event, which
// is how the service runs when NATS is not configured.
type Publisher struct {
	conn   conn
	logger *logrus.Entry
}

// NewPublisher connects to NATS with unlimited reconnects
func NewPublisher(natsURL string, logger *logrus.Logger) (*Publisher, error) {
	if natsURL == "" {
		return nil, fmt.Errorf("NATS URL is required")
	}

	nc, err := nats.Connect(natsURL,
		nats.Name("dshome-import-publisher"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newPublisher(nc, logger), nil
}

func newPublisher(c conn, logger *logrus.Logger) *Publisher {
	log := logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Publisher{
		conn:   c,
		logger: log.WithField("component", "import-events"),
	}
}

// PublishCompleted announces a finished batch, partial and cancelled ones included
func (p *Publisher) PublishCompleted(ctx context.Context, tenantID, sessionID, fileName string, result *models.ImportResult) error {
	if p == nil || result == nil {
		return nil
	}
	event := p.newEvent(SubjectImportCompleted, tenantID, sessionID, fileName)
	event.Success = result.Success
	event.Cancelled = result.Cancelled
	event.TotalRows = result.TotalRows
	event.ProcessedRows = result.ProcessedRows
	event.SkippedRows = result.SkippedRows
	event.UpdatedPrices = result.UpdatedPrices
	event.UpdatedInventories = result.UpdatedInventories
	event.ErrorCount = len(result.Errors)
	return p.publish(event)
}

// PublishFailed announces a batch that ended without a result
func (p *Publisher) PublishFailed(ctx context.Context, tenantID, sessionID, fileName string, cause error) error {
	if p == nil || cause == nil {
		return nil
	}
	event := p.newEvent(SubjectImportFailed, tenantID, sessionID, fileName)
	event.Failure = cause.Error()
	return p.publish(event)
}

func (p *Publisher) newEvent(subject, tenantID, sessionID, fileName string) *ImportEvent {
	return &ImportEvent{
		EventID:   uuid.NewString(),
		EventType: subject,
		TenantID:  tenantID,
		SessionID: sessionID,
		FileName:  fileName,
		Timestamp: time.Now().UTC(),
	}
}

func (p *Publisher) publish(event *ImportEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.EventType, err)
	}
	if err := p.conn.Publish(event.EventType, data); err != nil {
		p.logger.WithFields(logrus.Fields{
			"tenantId":  event.TenantID,
			"sessionId": event.SessionID,
		}).WithError(err).Errorf("Failed to publish %s event", event.EventType)
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"tenantId":  event.TenantID,
		"sessionId": event.SessionID,
	}).Infof("Published %s event", event.EventType)
	return nil
}

// Close drains pending messages and closes the connection
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.conn.Drain()
}
