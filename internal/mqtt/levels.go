// Package mqtt receives microphone level telemetry from the broker.
package mqtt

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
)

type Options struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
}

// LevelSource is a latest-wins mailbox of audio levels. A sample is handed
// out once; samples that arrive between reads overwrite each other.
type LevelSource struct {
	opts   Options
	client paho.Client

	mu        sync.Mutex
	latest    float64
	fresh     bool
	received  uint64
	malformed uint64
}

func NewLevelSource(opts Options) *LevelSource {
	return &LevelSource{opts: opts}
}

// Connect establishes the broker session and subscribes to the level
// topic. Subscriptions are renewed on every reconnect.
func (s *LevelSource) Connect() error {
	opts := paho.NewClientOptions()
	opts.AddBroker(s.opts.Broker)
	opts.SetClientID(s.opts.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c paho.Client) {
		token := c.Subscribe(s.opts.Topic, s.opts.QoS, func(_ paho.Client, msg paho.Message) {
			s.HandlePayload(msg.Payload())
		})
		if !token.WaitTimeout(5 * time.Second) {
			slog.Error("mqtt: subscribe timeout", "topic", s.opts.Topic)
			return
		}
		if err := token.Error(); err != nil {
			slog.Error("mqtt: subscribe failed", "topic", s.opts.Topic, "error", err)
			return
		}
		slog.Info("mqtt: subscribed to audio levels", "broker", s.opts.Broker, "topic", s.opts.Topic)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		slog.Warn("mqtt: connection lost, will auto-reconnect", "broker", s.opts.Broker, "error", err)
	}

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

func (s *LevelSource) Close() {
	if s.client != nil {
		s.client.Disconnect(250)
	}
}

// HandlePayload accepts either a bare number or {"avg": n}.
func (s *LevelSource) HandlePayload(payload []byte) {
	avg, err := parseLevel(payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.malformed++
		slog.Debug("mqtt: malformed level sample", "error", err)
		return
	}
	s.latest = avg
	s.fresh = true
	s.received++
}

func (s *LevelSource) Latest() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fresh {
		return 0, false
	}
	s.fresh = false
	return s.latest, true
}

// Stats returns received and malformed sample counts.
func (s *LevelSource) Stats() (received, malformed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received, s.malformed
}

func parseLevel(payload []byte) (float64, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) > 0 && payload[0] == '{' {
		var sample struct {
			Avg *float64 `json:"avg"`
		}
		if err := json.Unmarshal(payload, &sample); err != nil {
			return 0, err
		}
		if sample.Avg == nil {
			return 0, fmt.Errorf("missing avg")
		}
		return *sample.Avg, nil
	}
	return strconv.ParseFloat(string(payload), 64)
}
