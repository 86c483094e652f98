package notifier

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Broadcaster publishes engine events for downstream consumers (guild chat
// bridges, dashboards). Publishing is best-effort from the engine's point of
// view: callers log failures but never roll back on them.
type Broadcaster interface {
	PublishBid(lotID, bidderID string, amount float64, extended bool)
	PublishWindowExtended(lotID string, endsAt time.Time)
	PublishLotClosed(lotID, winnerID string, amount float64)
	PublishDrawResult(raffleID, winnerID string, roll float64)
	PublishGrant(accountID string, amount float64)
}

type engineEvent struct {
	Type      string  `json:"type"`
	LotID     string  `json:"lot_id,omitempty"`
	RaffleID  string  `json:"raffle_id,omitempty"`
	AccountID string  `json:"account_id,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
	Roll      float64 `json:"roll,omitempty"`
	Extended  bool    `json:"extended,omitempty"`
	EndsAt    int64   `json:"ends_at,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// NatsNotifier publishes engine events to a single NATS subject as JSON.
type NatsNotifier struct {
	conn    *nats.Conn
	subject string
}

func NewNatsNotifier(natsURL, subject string) (*NatsNotifier, error) {
	conn, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NatsNotifier{conn: conn, subject: subject}, nil
}

func (n *NatsNotifier) PublishBid(lotID, bidderID string, amount float64, extended bool) {
	n.emit(engineEvent{
		Type:      "bid_placed",
		LotID:     lotID,
		AccountID: bidderID,
		Amount:    amount,
		Extended:  extended,
	})
}

func (n *NatsNotifier) PublishWindowExtended(lotID string, endsAt time.Time) {
	n.emit(engineEvent{
		Type:   "window_extended",
		LotID:  lotID,
		EndsAt: endsAt.Unix(),
	})
}

func (n *NatsNotifier) PublishLotClosed(lotID, winnerID string, amount float64) {
	n.emit(engineEvent{
		Type:      "lot_closed",
		LotID:     lotID,
		AccountID: winnerID,
		Amount:    amount,
	})
}

func (n *NatsNotifier) PublishDrawResult(raffleID, winnerID string, roll float64) {
	n.emit(engineEvent{
		Type:      "draw_result",
		RaffleID:  raffleID,
		AccountID: winnerID,
		Roll:      roll,
	})
}

func (n *NatsNotifier) PublishGrant(accountID string, amount float64) {
	n.emit(engineEvent{
		Type:      "reward_granted",
		AccountID: accountID,
		Amount:    amount,
	})
}

func (n *NatsNotifier) emit(event engineEvent) {
	event.Timestamp = time.Now().Unix()
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = n.conn.Publish(n.subject, data)
}

func (n *NatsNotifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

// NopBroadcaster drops every event. Wired when NATS is not configured.
type NopBroadcaster struct{}

func (NopBroadcaster) PublishBid(string, string, float64, bool)  {}
func (NopBroadcaster) PublishWindowExtended(string, time.Time)   {}
func (NopBroadcaster) PublishLotClosed(string, string, float64)  {}
func (NopBroadcaster) PublishDrawResult(string, string, float64) {}
func (NopBroadcaster) PublishGrant(string, float64)              {}
