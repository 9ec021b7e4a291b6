package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kestrelworks/queryd/internal/logging"
)

// Event is one query lifecycle notification.
type Event struct {
	QueryID    string  `json:"query_id"`
	Variant    string  `json:"variant"`
	CacheHit   bool    `json:"cache_hit"`
	DurationMs int64   `json:"duration_ms"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
	Timestamp  int64   `json:"timestamp"`
}

// Publisher emits query lifecycle events.
type Publisher interface {
	QueryCompleted(ctx context.Context, e Event)
	QueryFailed(ctx context.Context, e Event)
	Close()
}

// NATSPublisher publishes events to NATS subjects under a configured
// prefix: <prefix>.query.completed and <prefix>.query.failed.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *logging.Logger
}

// Connect dials NATS and returns a publisher over the connection.
func Connect(url, subjectPrefix string, logger *logging.Logger) (*NATSPublisher, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return NewNATSPublisher(conn, subjectPrefix, logger), nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn *nats.Conn, subjectPrefix string, logger *logging.Logger) *NATSPublisher {
	if subjectPrefix == "" {
		subjectPrefix = "queryd"
	}
	return &NATSPublisher{
		conn:   conn,
		prefix: subjectPrefix,
		logger: logger.Named("events"),
	}
}

// QueryCompleted publishes a completion event.
func (p *NATSPublisher) QueryCompleted(ctx context.Context, e Event) {
	p.publish(ctx, p.prefix+".query.completed", e)
}

// QueryFailed publishes a failure event.
func (p *NATSPublisher) QueryFailed(ctx context.Context, e Event) {
	p.publish(ctx, p.prefix+".query.failed", e)
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

func (p *NATSPublisher) publish(ctx context.Context, subject string, e Event) {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}
	data, err := json.Marshal(e)
	if err != nil {
		p.logger.Warn(ctx, "marshal event failed",
			zap.String("subject", subject),
			zap.Error(err))
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn(ctx, "publish event failed",
			zap.String("subject", subject),
			zap.String("query_id", e.QueryID),
			zap.Error(err))
	}
}

// NoopPublisher discards all events.
type NoopPublisher struct{}

func (NoopPublisher) QueryCompleted(context.Context, Event) {}
func (NoopPublisher) QueryFailed(context.Context, Event)    {}
func (NoopPublisher) Close()                                {}
