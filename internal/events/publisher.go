package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Subjects published after a transaction commits.
const (
	SubjectLedgerEntryCreated = "ledger.entry.created"
	SubjectEntitlementGranted = "entitlement.granted"
	SubjectPaymentCompleted   = "payment.completed"
	SubjectReferralCompleted  = "referral.completed"
)

// Publisher delivers events to downstream consumers. Delivery is best effort:
// the database is the source of truth.
type Publisher interface {
	Publish(subject string, payload any) error
}

type NATSPublisher struct {
	nc *nats.Conn
}

// Connect dials NATS. An empty url yields a no-op publisher.
func Connect(url string) (Publisher, func(), error) {
	if url == "" {
		return NopPublisher{}, func() {}, nil
	}

	nc, err := nats.Connect(url, nats.Name("record-vault-ledger"))
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	log.WithField("url", url).Info("NATS connection established")

	return NewNATSPublisher(nc), func() { _ = nc.Drain() }, nil
}

// NewNATSPublisher publishes JSON-encoded payloads on nc.
func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

func (p *NATSPublisher) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", subject, err)
	}
	return p.nc.Publish(subject, data)
}

type NopPublisher struct{}

func (NopPublisher) Publish(string, any) error { return nil }

// Emit publishes and only logs failures, so a committed change is never reported as failed.
func Emit(p Publisher, subject string, payload any) {
	if p == nil {
		return
	}
	if err := p.Publish(subject, payload); err != nil {
		log.WithError(err).WithField("subject", subject).Warn("failed to publish event")
	}
}
