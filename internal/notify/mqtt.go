package notify

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"octoprint-cli/internal/apperr"
	"octoprint-cli/internal/config"
	"octoprint-cli/internal/logger"
	"octoprint-cli/internal/status"
)

const (
	TopicAnomalies = "anomalies"
	TopicStatus    = "status"
)

// Event is the JSON document published for every report or status.
type Event struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	Printer string    `json:"printer,omitempty"`
	Time    time.Time `json:"time"`
	Data    any       `json:"data"`
}

type Publisher struct {
	client  mqtt.Client
	topic   string
	printer string
	timeout time.Duration
	log     *logger.Logger
}

// NewPublisher connects to the broker in s. printer identifies the source
// in every event, usually the OctoPrint URL.
func NewPublisher(s config.MQTTSettings, printer string, timeout time.Duration, log *logger.Logger) (*Publisher, error) {
	if log == nil {
		log = logger.Discard()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	broker, err := BrokerURL(s.Broker)
	if err != nil {
		return nil, &apperr.ConfigError{Err: fmt.Errorf("mqtt.broker: %w", err)}
	}
	topic := strings.Trim(s.Topic, "/")
	if topic == "" {
		topic = config.DefaultMQTTTopic
	}
	clientID := s.ClientID
	if clientID == "" {
		clientID = "octoprint-cli-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	if s.Username != "" {
		opts.SetUsername(s.Username)
		opts.SetPassword(s.Password)
	}
	opts.SetConnectTimeout(timeout)
	opts.SetAutoReconnect(true)
	if strings.HasPrefix(broker, "tls://") || strings.HasPrefix(broker, "ssl://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnw("mqtt connection lost", "broker", broker, "err", err)
	})

	p := &Publisher{
		client:  mqtt.NewClient(opts),
		topic:   topic,
		printer: printer,
		timeout: timeout,
		log:     log,
	}
	token := p.client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	log.Debugw("mqtt connected", "broker", broker, "client_id", clientID)
	return p, nil
}

// BrokerURL accepts "host", "host:port" or a full tcp/tls/ssl/ws URL and
// fills in the scheme and default port.
func BrokerURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("broker is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "tcp://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "tcp", "mqtt":
		u.Scheme = "tcp"
	case "tls", "ssl", "mqtts":
		u.Scheme = "tls"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", raw)
	}
	if u.Port() == "" && (u.Scheme == "tcp" || u.Scheme == "tls") {
		port := "1883"
		if u.Scheme == "tls" {
			port = "8883"
		}
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}
	return u.String(), nil
}

func (p *Publisher) Topic(sub string) string {
	return p.topic + "/" + sub
}

func (p *Publisher) PublishReport(r status.Report) error {
	return p.publish(TopicAnomalies, NewEvent("report", p.printer, r.Timestamp, r))
}

func (p *Publisher) PublishStatus(pretty status.Pretty, at time.Time) error {
	return p.publish(TopicStatus, NewEvent("status", p.printer, at, pretty))
}

func NewEvent(kind, printer string, at time.Time, data any) Event {
	if at.IsZero() {
		at = time.Now()
	}
	return Event{ID: uuid.NewString(), Kind: kind, Printer: printer, Time: at.UTC(), Data: data}
}

func (p *Publisher) publish(sub string, ev Event) error {
	if p.client == nil || !p.client.IsConnected() {
		return errors.New("mqtt not connected")
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	topic := p.Topic(sub)
	token := p.client.Publish(topic, 1, false, b)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("mqtt publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	p.log.Debugw("mqtt published", "topic", topic, "id", ev.ID, "bytes", len(b))
	return nil
}

func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
