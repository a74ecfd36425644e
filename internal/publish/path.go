package publish

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/esp-sensor-hub/bridge/internal/frame"
	"github.com/esp-sensor-hub/bridge/internal/metrics"
	"github.com/esp-sensor-hub/bridge/internal/queue"
	"github.com/esp-sensor-hub/bridge/internal/radio"
	"github.com/esp-sensor-hub/bridge/internal/registry"
)

const (
	dequeueTimeout = 100 * time.Millisecond
	reconnectEvery = 5 * time.Second

	// rxWindowDelay matches the sensor's receive-window opening: a node
	// listens briefly after transmitting, so queued commands are sent a
	// beat after its frame arrives, not immediately.
	rxWindowDelay = 3 * time.Second

	recentEventsKept = 100
)

// Topics groups every broker topic the path publishes or subscribes to.
type Topics struct {
	Prefix        string
	Command       string
	Ack           string
	GatewayStatus string
}

// Mirror is the optional persistence sidecar boundary. Posts are
// best-effort and must never block the caller.
type Mirror interface {
	Post(kind string, body any)
}

// GatewayStatus is the retained online/offline document on the
// gateway-status topic.
type GatewayStatus struct {
	GatewayID string `json:"gateway_id"`
	Address   string `json:"address"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// Path is the publish-side loop: broker connectivity, record
// translation, command ingress, and opportunistic command retries. One
// instance runs on its own goroutine, started from cmd/bridge.
type Path struct {
	client   BrokerClient
	topics   Topics
	tr       *Translator
	in       *queue.DecodedQueue
	commands *queue.CommandQueue
	arb      *radio.Arbiter
	reg      *registry.Registry
	counters *metrics.Counters
	mirror   Mirror
	kick     func()

	gatewayID string
	address   string

	retryDelay    time.Duration
	lastReconnect time.Time

	mu           sync.Mutex
	recentEvents []EventMessage
}

// NewPath wires the publish path. mirror may be nil when no sidecar is
// configured; kick may be nil in tests.
func NewPath(client BrokerClient, topics Topics, tr *Translator, in *queue.DecodedQueue,
	commands *queue.CommandQueue, arb *radio.Arbiter, reg *registry.Registry,
	counters *metrics.Counters, mirror Mirror, address string, kick func()) *Path {
	if kick == nil {
		kick = func() {}
	}
	return &Path{
		client:     client,
		topics:     topics,
		tr:         tr,
		in:         in,
		commands:   commands,
		arb:        arb,
		reg:        reg,
		counters:   counters,
		mirror:     mirror,
		kick:       kick,
		gatewayID:  uuid.NewString(),
		address:    address,
		retryDelay: rxWindowDelay,
	}
}

// Run drives the loop until ctx is done, then announces the gateway
// offline and disconnects.
func (p *Path) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return
		default:
		}

		p.kick()

		if !p.client.IsConnected() {
			p.counters.BrokerConnected.Set(0)
			p.tryReconnect()
			// Leave the decoded-record queue alone while the broker is
			// down; it back-pressures toward the receive side.
			time.Sleep(dequeueTimeout)
			continue
		}
		p.counters.BrokerConnected.Set(1)

		rec, ok := p.in.DequeueWithTimeout(ctx, dequeueTimeout)
		if !ok {
			continue
		}
		p.handleRecord(rec)
	}
}

// tryReconnect attempts a broker connection at most once per
// reconnectEvery. On success it re-subscribes to the command topic and
// re-publishes the retained online status.
func (p *Path) tryReconnect() {
	if time.Since(p.lastReconnect) < reconnectEvery {
		return
	}
	p.lastReconnect = time.Now()

	if err := p.client.Connect(); err != nil {
		log.Printf("publish: broker connect failed: %v", err)
		return
	}
	log.Printf("publish: connected to broker")

	if err := p.client.Subscribe(p.topics.Command, p.onCommand); err != nil {
		log.Printf("publish: subscribe %s failed: %v", p.topics.Command, err)
	}
	p.announce("online")
}

func (p *Path) announce(status string) {
	body, _ := json.Marshal(GatewayStatus{
		GatewayID: p.gatewayID,
		Address:   p.address,
		Status:    status,
		Timestamp: time.Now().Unix(),
	})
	if err := p.client.Publish(p.topics.GatewayStatus, true, body); err != nil {
		log.Printf("publish: gateway status failed: %v", err)
	}
}

func (p *Path) shutdown() {
	if p.client.IsConnected() {
		p.announce("offline")
		p.client.Disconnect()
	}
}

// handleRecord processes one decoded record: first the command-retry
// trigger for the originating device, then translation and publish.
func (p *Path) handleRecord(rec *queue.DecodedRecord) {
	id := rec.Header.DeviceID

	// This is the sole moment the device is known to be listening.
	if pending := p.commands.SnapshotFor(id); len(pending) > 0 {
		time.Sleep(p.retryDelay)
		p.counters.CommandRetries.Add(float64(len(pending)))
		p.commands.RetryFor(p.arb, id)
	}

	switch rec.Header.Type {
	case frame.TypeReadings:
		topic, msg := p.tr.Readings(rec)
		p.publishJSON(topic, msg)
		p.mirrorPost(id, "devices", msg)
	case frame.TypeStatus:
		topic, msg := p.tr.Status(rec)
		p.publishJSON(topic, msg)
		p.mirrorPost(id, "devices", msg)
	case frame.TypeEvent:
		topic, msg, err := p.tr.Event(rec)
		if err != nil {
			log.Printf("publish: event from %016X undecodable: %v", uint64(id), err)
			return
		}
		p.remember(msg)
		p.publishJSON(topic, msg)
		p.mirrorPost(id, "events", msg)
	default:
		// COMMAND/ACK frames are gateway-originated; nothing to publish.
	}
}

func (p *Path) publishJSON(topic string, msg any) {
	body, err := json.Marshal(msg)
	if err != nil {
		p.counters.PublishErrors.Inc()
		log.Printf("publish: marshal for %s failed: %v", topic, err)
		return
	}
	if err := p.client.Publish(topic, false, body); err != nil {
		p.counters.PublishErrors.Inc()
		log.Printf("publish: %s failed: %v", topic, err)
		return
	}
	p.counters.Published.Inc()
}

// mirrorPost hands msg to the sidecar mirror with device_id rewritten
// as a decimal string: JSON consumers on the sidecar side truncate
// 64-bit integers, and the hex token is reserved for broker topics.
func (p *Path) mirrorPost(id frame.DeviceID, kind string, msg any) {
	if p.mirror == nil {
		return
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		return
	}
	flat["device_id"] = strconv.FormatUint(uint64(id), 10)
	p.mirror.Post(kind, flat)
}

// onCommand handles one inbound message on the command topic: validate,
// enqueue (with an eager first transmission), acknowledge.
func (p *Path) onCommand(_ string, payload []byte) {
	id, req, cmd, err := ParseCommand(payload)
	if err != nil {
		log.Printf("publish: rejecting command %q: %v", payload, err)
		return
	}

	if err := p.commands.Enqueue(p.arb, id, cmd.CommandType, cmd.Parameter); err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			p.counters.CommandsQueueFull.Inc()
		}
		log.Printf("publish: enqueue %s for %s failed: %v", req.Action, req.DeviceID, err)
		return
	}
	p.counters.CommandsEnqueued.Inc()
	p.mirrorPost(id, "commands", req)

	ack, _ := json.Marshal(CommandAck{DeviceID: req.DeviceID, Action: req.Action, Status: "queued"})
	if err := p.client.Publish(p.topics.Ack, false, ack); err != nil {
		log.Printf("publish: command ack failed: %v", err)
	}
}

// remember keeps a bounded ring of recent events for the admin surface.
func (p *Path) remember(msg *EventMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recentEvents = append(p.recentEvents, *msg)
	if len(p.recentEvents) > recentEventsKept {
		p.recentEvents = p.recentEvents[len(p.recentEvents)-recentEventsKept:]
	}
}

// RecentEvents returns a copy of the retained event history, newest
// last.
func (p *Path) RecentEvents() []EventMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventMessage, len(p.recentEvents))
	copy(out, p.recentEvents)
	return out
}

// Connected reports the broker connection state for the admin health
// view.
func (p *Path) Connected() bool {
	return p.client.IsConnected()
}
