package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"tankersim/pkg/api"
)

// MQTTConfig configures the broker connection for event publishing.
type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
}

// MQTTEmitter publishes one JSON message per event to
// fleet/tankers/{id}/events at QoS 0. Publishing is best-effort: a failed or
// slow publish is logged and dropped, never retried.
type MQTTEmitter struct {
	cm     *autopaho.ConnectionManager
	logger *slog.Logger
}

// NewMQTTEmitter connects to the broker and returns a ready emitter. The
// connection manager reconnects in the background; events emitted while
// disconnected are dropped.
func NewMQTTEmitter(ctx context.Context, cfg MQTTConfig, logger *slog.Logger) (*MQTTEmitter, error) {
	brokerURL, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid mqtt broker url: %w", err)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "tankersim-emitter"
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     60,
		CleanStartOnInitialConnection: true,
		ConnectTimeout:                5 * time.Second,
		ConnectUsername:               cfg.Username,
		ConnectPassword:               []byte(cfg.Password),
		OnConnectError: func(err error) {
			logger.Warn("mqtt connect error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: cfg.ClientID,
			OnClientError: func(err error) {
				logger.Warn("mqtt client error", "error", err)
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start mqtt connection: %w", err)
	}

	return &MQTTEmitter{cm: cm, logger: logger}, nil
}

// Emit publishes the event. Fire-and-forget: errors are logged, not returned.
func (m *MQTTEmitter) Emit(ctx context.Context, e Event) {
	msg := api.TankerEvent{
		TankerID:       e.TankerID,
		PreviousStatus: string(e.PreviousStatus),
		Timestamp:      e.Timestamp,
	}
	if e.NewStatus != nil {
		s := string(*e.NewStatus)
		msg.NewStatus = &s
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		m.logger.Warn("failed to marshal event", "tanker_id", e.TankerID, "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err = m.cm.Publish(pubCtx, &paho.Publish{
		Topic:   api.EventTopic(e.TankerID),
		QoS:     0,
		Payload: payload,
	})
	if err != nil {
		m.logger.Warn("failed to publish event", "tanker_id", e.TankerID, "error", err)
	}
}

// Close disconnects from the broker.
func (m *MQTTEmitter) Close(ctx context.Context) error {
	return m.cm.Disconnect(ctx)
}
