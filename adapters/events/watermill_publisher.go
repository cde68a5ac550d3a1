package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/layer-3/palette/core"
	"github.com/layer-3/palette/ports"
)

// Topics published by the service.
const (
	TopicSessionIssued    = "palette.session.issued"
	TopicSessionSignedOut = "palette.session.signed_out"
	TopicVoucherIssued    = "palette.voucher.issued"
)

// SessionEvent describes a session lifecycle change. The bearer token is never included.
type SessionEvent struct {
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id"`
	WalletAddress string    `json:"wallet_address"`
	NewIdentity   bool      `json:"new_identity,omitempty"`
	At            time.Time `json:"at"`
}

// VoucherEvent records an issued voucher for off-chain auditing.
type VoucherEvent struct {
	Recipient   string `json:"recipient"`
	Amount      string `json:"amount"` // base units, decimal string
	Nonce       string `json:"nonce"`
	MessageHash string `json:"message_hash"`
	PlayerLabel string `json:"player_label,omitempty"`
}

var (
	_ ports.EventPublisher = (*WatermillPublisher)(nil)
	_ ports.EventPublisher = NopPublisher{}
)

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	now       func() time.Time
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher, now: time.Now}
}

// PublishSessionIssued publishes a session issued event
func (p *WatermillPublisher) PublishSessionIssued(ctx context.Context, session *core.Session, created bool) error {
	return p.publish(ctx, TopicSessionIssued, session.ID, SessionEvent{
		SessionID:     session.ID,
		UserID:        session.UserID,
		WalletAddress: session.WalletAddress,
		NewIdentity:   created,
		At:            session.IssuedAt.UTC(),
	})
}

// PublishSignedOut publishes a sign-out event
func (p *WatermillPublisher) PublishSignedOut(ctx context.Context, session *core.Session) error {
	at := p.now().UTC()
	if session.RevokedAt != nil {
		at = session.RevokedAt.UTC()
	}
	return p.publish(ctx, TopicSessionSignedOut, session.ID, SessionEvent{
		SessionID:     session.ID,
		UserID:        session.UserID,
		WalletAddress: session.WalletAddress,
		At:            at,
	})
}

// PublishVoucherIssued publishes a voucher issued event
func (p *WatermillPublisher) PublishVoucherIssued(ctx context.Context, voucher *core.ClaimVoucher) error {
	return p.publish(ctx, TopicVoucherIssued, voucher.MessageHash.Hex(), VoucherEvent{
		Recipient:   voucher.Recipient.Hex(),
		Amount:      voucher.Amount.String(),
		Nonce:       voucher.Nonce.String(),
		MessageHash: voucher.MessageHash.Hex(),
		PlayerLabel: voucher.PlayerLabel,
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, key string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("key", key)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishSessionIssued(context.Context, *core.Session, bool) error { return nil }
func (NopPublisher) PublishSignedOut(context.Context, *core.Session) error           { return nil }
func (NopPublisher) PublishVoucherIssued(context.Context, *core.ClaimVoucher) error  { return nil }
