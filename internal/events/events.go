// Package events publishes posting lifecycle events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectUpserted = "naraboard.posting.upserted"
	SubjectDeleted  = "naraboard.posting.deleted"

	connectTimeout = 10 * time.Second
)

// Upserted is emitted after a posting is written by a sync.
type Upserted struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Department string    `json:"department"`
	WorkRegion string    `json:"workRegion"`
	Grade      string    `json:"grade"`
	Created    bool      `json:"created"`
	At         time.Time `json:"at"`
}

// Deleted is emitted after cleanup removes a posting.
type Deleted struct {
	ID           string    `json:"id"`
	RegisteredOn string    `json:"registeredOn"`
	ExpiresOn    string    `json:"expiresOn"`
	At           time.Time `json:"at"`
}

type Publisher interface {
	PublishUpserted(ctx context.Context, e Upserted) error
	PublishDeleted(ctx context.Context, e Deleted) error
	Close() error
}

// NATS publishes events as JSON messages.
type NATS struct {
	conn    *nats.Conn
	publish func(subject string, data []byte) error
	logger  *slog.Logger
}

// NewNATS connects to natsURL. The connection reconnects indefinitely.
func NewNATS(natsURL string) (*NATS, error) {
	opts := []nats.Option{
		nats.Name("naraboard"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	}

	conn, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	return &NATS{conn: conn, publish: conn.Publish, logger: slog.Default()}, nil
}

func (p *NATS) PublishUpserted(_ context.Context, e Upserted) error {
	return p.send(SubjectUpserted, e.ID, e)
}

func (p *NATS) PublishDeleted(_ context.Context, e Deleted) error {
	return p.send(SubjectDeleted, e.ID, e)
}

func (p *NATS) send(subject, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", subject, err)
	}
	if err := p.publish(subject, data); err != nil {
		p.logger.Error("failed to publish event", "subject", subject, "id", id, "error", err)
		return fmt.Errorf("publishing %s: %w", subject, err)
	}
	p.logger.Debug("published event", "subject", subject, "id", id)
	return nil
}

func (p *NATS) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}

// Noop discards every event.
type Noop struct{}

func (Noop) PublishUpserted(context.Context, Upserted) error { return nil }
func (Noop) PublishDeleted(context.Context, Deleted) error { return nil }
func (Noop) Close() error { return nil }
