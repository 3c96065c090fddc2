package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	for _, cfg := range streamConfigs() {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				conn.Close()
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishAnalysisRequest queues a request on the work queue. The run id is
// the message id so a retried submit is deduplicated.
func (p *Publisher) PublishAnalysisRequest(ctx context.Context, req *domain.AnalysisRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	opts := []nats.PubOpt{nats.Context(ctx)}
	if req.RunID != "" {
		opts = append(opts, nats.MsgId(req.RunID))
	}
	_, err = p.js.Publish(RequestSubject(req.ProjectID), data, opts...)
	return err
}

// PublishProgress sends a progress update. Progress is not persisted, late
// subscribers read the run store instead.
func (p *Publisher) PublishProgress(ctx context.Context, pr *domain.Progress) error {
	data, err := json.Marshal(pr)
	if err != nil {
		return err
	}
	return p.conn.Publish(ProgressSubject(pr.RunID), data)
}

func (p *Publisher) PublishAnalysisCompleted(ctx context.Context, run *domain.AnalysisRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(CompletedSubject(run.ID), data, nats.Context(ctx))
	return err
}

// Connected reports whether the connection is up.
func (p *Publisher) Connected() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}
