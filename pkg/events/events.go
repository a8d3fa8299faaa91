package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/diagnosis/onboarding/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	SignupInitiated    = "signup.initiated"
	SignupCodeResent   = "signup.code.resent"
	IdentityConfirmed  = "identity.confirmed"
	AccountProvisioned = "account.provisioned"
	AccountRepaired    = "account.repaired"
	ProvisioningStale  = "provisioning.stale"
)

// Event payloads
type SignupInitiatedEvent struct {
	IdentityID  int64     `json:"identity_id"`
	Email       string    `json:"email"`
	CompanyName string    `json:"company_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type SignupCodeResentEvent struct {
	Email    string    `json:"email"`
	ResentAt time.Time `json:"resent_at"`
}

type IdentityConfirmedEvent struct {
	IdentityID  int64     `json:"identity_id"`
	Email       string    `json:"email"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type AccountProvisionedEvent struct {
	IdentityID    int64     `json:"identity_id"`
	CompanyName   string    `json:"company_name"`
	AccountType   string    `json:"account_type"`
	ProvisionedAt time.Time `json:"provisioned_at"`
}

type AccountRepairedEvent struct {
	IdentityID int64     `json:"identity_id"`
	Created    bool      `json:"created"`
	RepairedAt time.Time `json:"repaired_at"`
}

type ProvisioningStaleEvent struct {
	IdentityID int64     `json:"identity_id"`
	Attempts   int       `json:"attempts"`
	DetectedAt time.Time `json:"detected_at"`
}
