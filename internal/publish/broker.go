package publish

import (
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// opTimeout bounds every broker operation, which then returns
// ErrBrokerTimeout. A timed-out Connect leaves the client disconnected,
// so the publish path retries it on its reconnect cadence; a timed-out
// Publish or Subscribe does not close the connection.
const opTimeout = 5 * time.Second

// ErrBrokerTimeout is returned when a broker operation does not
// complete within opTimeout.
var ErrBrokerTimeout = errors.New("publish: broker operation timed out")

// BrokerClient is the broker boundary the publish path depends on.
// Consumed only through this interface so tests can simulate
// disconnects, slow acks, and malformed inbound messages.
type BrokerClient interface {
	Connect() error
	IsConnected() bool
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Disconnect()
}

// BrokerOptions carries the connection settings for the paho-backed
// client.
type BrokerOptions struct {
	Host           string
	Port           int
	Username       string
	Password       string
	ClientIDPrefix string
}

// pahoClient adapts the eclipse/paho client to BrokerClient. Automatic
// reconnection is disabled: the publish path owns the retry cadence so
// the decoded-record queue back-pressures while the broker is down.
type pahoClient struct {
	client mqtt.Client
}

// NewPahoClient builds a BrokerClient over plain TCP with a 15 s
// keep-alive and a uuid-suffixed client ID.
func NewPahoClient(o BrokerOptions) BrokerClient {
	prefix := o.ClientIDPrefix
	if prefix == "" {
		prefix = "esp-sensor-hub"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", o.Host, o.Port))
	opts.SetClientID(prefix + "-" + uuid.NewString()[:8])
	if o.Username != "" {
		opts.SetUsername(o.Username)
	}
	if o.Password != "" {
		opts.SetPassword(o.Password)
	}
	opts.SetAutoReconnect(false)
	opts.SetKeepAlive(15 * time.Second)
	opts.SetPingTimeout(opTimeout)
	opts.SetConnectTimeout(opTimeout)

	return &pahoClient{client: mqtt.NewClient(opts)}
}

func (c *pahoClient) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(opTimeout) {
		return ErrBrokerTimeout
	}
	return token.Error()
}

func (c *pahoClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *pahoClient) Publish(topic string, retained bool, payload []byte) error {
	token := c.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(opTimeout) {
		return ErrBrokerTimeout
	}
	return token.Error()
}

func (c *pahoClient) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	token := c.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(opTimeout) {
		return ErrBrokerTimeout
	}
	return token.Error()
}

func (c *pahoClient) Disconnect() {
	c.client.Disconnect(uint(opTimeout / time.Millisecond))
}
