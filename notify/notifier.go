package notify

import (
	"encoding/json"
	"fmt"
	"net"

	"go.uber.org/zap"

	"cross/domain/book"
	"cross/users"
)

// Notifier pushes per-trade datagrams to the counterparties' registered
// UDP addresses. Pure fire-and-forget: a user who is offline or whose
// datagram is lost simply misses the push.
type Notifier struct {
	conn     *net.UDPConn
	sessions *users.Manager
	log      *zap.Logger
}

type tradeNotification struct {
	Notification string `json:"notification"`
	OrderID      uint64 `json:"orderId"`
	Type         string `json:"type"` // buy or sell, from the recipient's view
	Size         int64  `json:"size"`
	Price        int64  `json:"price"`
	Timestamp    int64  `json:"timestamp"`
}

func New(sessions *users.Manager, log *zap.Logger) (*Notifier, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("open udp socket: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{conn: conn, sessions: sessions, log: log}, nil
}

// NotifyTrade sends one execution to one participant.
func (n *Notifier) NotifyTrade(user string, t book.Trade) error {
	addr, ok := n.sessions.SessionAddr(user)
	if !ok {
		// Not logged in; nothing to deliver.
		return nil
	}

	side := "sell"
	if user == t.Buyer {
		side = "buy"
	}

	msg := tradeNotification{
		Notification: "tradeExecuted",
		OrderID:      t.TakerOrderID,
		Type:         side,
		Size:         t.Size,
		Price:        t.Price,
		Timestamp:    t.Timestamp.UnixMilli(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := n.conn.WriteToUDP(payload, addr); err != nil {
		return fmt.Errorf("send notification to %s: %w", user, err)
	}
	n.log.Debug("trade notification sent",
		zap.String("user", user), zap.Int64("size", t.Size), zap.Int64("price", t.Price))
	return nil
}

func (n *Notifier) Close() error {
	return n.conn.Close()
}
