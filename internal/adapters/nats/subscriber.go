package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeAnalysisRequests consumes the request work queue. A message is
// acked once handler succeeds, otherwise redelivered up to three times.
// Undecodable messages are terminated.
func (s *Subscriber) SubscribeAnalysisRequests(ctx context.Context, handler func(ctx context.Context, req *domain.AnalysisRequest) error) error {
	sub, err := s.js.Subscribe(SubjectRequests, func(msg *nats.Msg) {
		var req domain.AnalysisRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			slog.Warn("dropping undecodable analysis request", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &req); err != nil {
			slog.Warn("analysis request failed", "run", req.RunID, "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable(durableDispatcher),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// SubscribeProgress receives progress updates of every run.
func (s *Subscriber) SubscribeProgress(ctx context.Context, handler func(ctx context.Context, p *domain.Progress) error) error {
	sub, err := s.conn.Subscribe(SubjectProgress, func(msg *nats.Msg) {
		p, err := DecodeProgress(msg.Data)
		if err != nil {
			slog.Debug("dropping undecodable progress", "subject", msg.Subject, "error", err)
			return
		}
		if err := handler(ctx, p); err != nil {
			slog.Debug("progress handler failed", "run", p.RunID, "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// DecodeProgress parses a progress message.
func DecodeProgress(data []byte) (*domain.Progress, error) {
	var p domain.Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.RunID == "" {
		return nil, fmt.Errorf("progress without run id")
	}
	return &p, nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
