package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/pixgeo/internal/core/domain"
)

// Subjects and streams used on the bus.
const (
	TargetSubjectPrefix  = "geolocate.target."
	RequestSubjectPrefix = "geolocate.request."

	TargetStream  = "GEOLOCATED_TARGETS"
	RequestStream = "GEOLOCATION_REQUESTS"
)

// TargetSubject is where targets found in imageID are published.
func TargetSubject(imageID string) string { return TargetSubjectPrefix + subjectToken(imageID) }

// RequestSubject is where geolocation requests for imageID are queued.
func RequestSubject(imageID string) string { return RequestSubjectPrefix + subjectToken(imageID) }

// subjectToken keeps an ID from splitting or wildcarding the subject.
func subjectToken(id string) string {
	if id == "" {
		return "_"
	}
	b := []byte(id)
	for i, c := range b {
		switch c {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			b[i] = '_'
		}
	}
	return string(b)
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      TargetStream,
			Subjects:  []string{TargetSubjectPrefix + ">"},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      RequestStream,
			Subjects:  []string{RequestSubjectPrefix + ">"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    72 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
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

// PublishTarget announces a newly stored target. The target ID doubles as the
// JetStream message ID so retried publishes are deduplicated.
func (p *Publisher) PublishTarget(ctx context.Context, target *domain.Target) error {
	data, err := json.Marshal(target)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(TargetSubject(target.ImageID), data, nats.Context(ctx), nats.MsgId(target.ID))
	return err
}

// PublishRequest queues a geolocation request for the worker.
func (p *Publisher) PublishRequest(ctx context.Context, req *domain.GeolocationRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(RequestSubject(req.ImageID), data, nats.Context(ctx))
	return err
}

// Ping reports whether the connection is up.
func (p *Publisher) Ping() error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("nats: %s", p.conn.Status())
	}
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("pixgeo"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
