package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/pixgeo/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber on its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
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

// SubscribeRequests consumes queued geolocation requests with a durable consumer.
// Requests that can never succeed are terminated instead of redelivered.
func (s *Subscriber) SubscribeRequests(ctx context.Context, handler func(ctx context.Context, req *domain.GeolocationRequest) error) error {
	sub, err := s.js.Subscribe(RequestSubjectPrefix+">", func(msg *nats.Msg) {
		var req domain.GeolocationRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			slog.Warn("dropping undecodable request", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &req); err != nil {
			if Permanent(err) {
				slog.Warn("request rejected", "image_id", req.ImageID, "error", err)
				_ = msg.Term()
				return
			}
			slog.Error("request failed, will retry", "image_id", req.ImageID, "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("geolocate-worker"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
		nats.AckWait(2*time.Minute),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Permanent reports whether retrying err cannot help.
func Permanent(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidPose,
		domain.ErrDegenerateProjection,
		domain.ErrMalformedMetadata,
		domain.ErrMetadataUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
