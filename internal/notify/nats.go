package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"backup-timeline/internal/logging"
	"backup-timeline/internal/timeline"
)

// DefaultSubject is the subject backups are announced on.
const DefaultSubject = "timeline.backup.synced"

// Conn is the part of a NATS connection a Publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// Publisher publishes timeline.BackupSynced events.
type Publisher struct {
	conn    Conn
	subject string
	log     *zap.Logger
}

var _ timeline.Publisher = (*Publisher)(nil)

// Connect dials url and returns a Publisher for subject. An empty subject
// means DefaultSubject.
func Connect(url, subject string) (*Publisher, error) {
	log := logging.Named("notify")

	opts := []nats.Option{
		nats.Name("backup-timeline"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrlRedacted()))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return NewPublisher(nc, subject), nil
}

// NewPublisher wraps an established connection.
func NewPublisher(conn Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: conn, subject: subject, log: logging.Named("notify")}
}

// Subject returns the subject events are published on.
func (p *Publisher) Subject() string {
	return p.subject
}

// PublishBackupSynced publishes event. The message is buffered by the client;
// delivery is not confirmed.
func (p *Publisher) PublishBackupSynced(_ context.Context, event timeline.BackupSynced) error {
	payload, err := sonic.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	p.log.Debug("published", zap.String("subject", p.subject),
		zap.String("source", event.Source), zap.String("backup_date", event.BackupDate))
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close(ctx context.Context) error {
	if err := p.conn.FlushWithContext(ctx); err != nil {
		p.log.Warn("flush before close failed", zap.Error(err))
	}
	return p.conn.Drain()
}
