// Package bridge provides a façade over the gateway's components: one
// constructor that wires the registry, radio arbiter, queues, and both
// pipelines together, and a Run method that drives them until the
// context is cancelled.
package bridge

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/esp-sensor-hub/bridge/internal/admin"
	"github.com/esp-sensor-hub/bridge/internal/config"
	"github.com/esp-sensor-hub/bridge/internal/frame"
	"github.com/esp-sensor-hub/bridge/internal/metrics"
	"github.com/esp-sensor-hub/bridge/internal/publish"
	"github.com/esp-sensor-hub/bridge/internal/queue"
	"github.com/esp-sensor-hub/bridge/internal/radio"
	"github.com/esp-sensor-hub/bridge/internal/receive"
	"github.com/esp-sensor-hub/bridge/internal/registry"
	"github.com/esp-sensor-hub/bridge/internal/sidecar"
	"github.com/esp-sensor-hub/bridge/internal/storepersist"
	"github.com/esp-sensor-hub/bridge/internal/watchdog"
)

// Re-export the wire-level types callers embed in their own code.
type (
	DeviceID = frame.DeviceID
	Frame    = frame.Frame
	Header   = frame.Header
	Driver   = radio.Driver
)

// Message types exposed in the public API.
const (
	TypeReadings = frame.TypeReadings
	TypeStatus   = frame.TypeStatus
	TypeEvent    = frame.TypeEvent
	TypeCommand  = frame.TypeCommand
	TypeAck      = frame.TypeAck
)

const decodedQueueCapacity = 64

// Bridge owns every component of the gateway.
type Bridge struct {
	cfg      *config.Config
	reg      *registry.Registry
	arb      *radio.Arbiter
	decoded  *queue.DecodedQueue
	commands *queue.CommandQueue
	counters *metrics.Counters
	wd       *watchdog.Watchdog
	recv     *receive.Pipeline
	pub      *publish.Path
	side     *sidecar.Client
	admin    *admin.Server
}

// New wires a bridge from its injected boundaries: the physical radio
// driver and the broker client.
func New(cfg *config.Config, drv radio.Driver, client publish.BrokerClient) (*Bridge, error) {
	var store storepersist.Store
	if cfg.Registry.PersistencePath != "" {
		store = storepersist.NewJSONFileStore(cfg.Registry.PersistencePath)
	}

	reg := registry.New(cfg.Registry.Capacity, cfg.Registry.DedupRingSize, store)
	if store != nil {
		entries, err := store.Load()
		if err != nil {
			log.Printf("bridge: persisted registry unreadable, starting empty: %v", err)
		} else {
			reg.LoadFrom(entries)
		}
	}

	arb, err := radio.NewArbiter(drv)
	if err != nil {
		return nil, fmt.Errorf("bridge: radio: %w", err)
	}

	counters := metrics.New()
	decoded := queue.NewDecodedQueue(decodedQueueCapacity)
	commands := queue.New(cfg.Command.Capacity, cfg.ExpirationDuration())

	wd := watchdog.New(0)
	wd.Register("receive")
	wd.Register("publish")

	recv := receive.New(arb, reg, decoded, counters, func() { wd.Kick("receive") })

	var side *sidecar.Client
	var mirror publish.Mirror
	if cfg.Sidecar.URL != "" {
		side = sidecar.New(cfg.Sidecar.URL, cfg.Sidecar.QueueCapacity,
			secondsDuration(cfg.Sidecar.ReconnectSeconds), secondsDuration(cfg.Sidecar.HealthProbeSeconds))
		mirror = side
	}

	tr := publish.NewTranslator(reg, cfg.Broker.TopicPrefix)
	topics := publish.Topics{
		Prefix:        cfg.Broker.TopicPrefix,
		Command:       cfg.Broker.CommandTopic,
		Ack:           cfg.Broker.AckTopic,
		GatewayStatus: cfg.Broker.TopicPrefix + "/gateway/status",
	}
	pub := publish.NewPath(client, topics, tr, decoded, commands, arb, reg, counters,
		mirror, localAddress(), func() { wd.Kick("publish") })

	return &Bridge{
		cfg:      cfg,
		reg:      reg,
		arb:      arb,
		decoded:  decoded,
		commands: commands,
		counters: counters,
		wd:       wd,
		recv:     recv,
		pub:      pub,
		side:     side,
		admin:    admin.NewServer(reg, commands, decoded, arb, pub, pub),
	}, nil
}

// Run starts every component and blocks until ctx is done. The receive
// and publish pipelines drain on cancellation; the watchdog restarts
// the process if either goes silent.
func (b *Bridge) Run(ctx context.Context) {
	go b.wd.Run(ctx)
	go b.recv.Run(ctx)
	go b.pub.Run(ctx)
	if b.side != nil {
		go b.side.Run(ctx)
	}
	go b.admin.Run(ctx, b.cfg.Admin.Listen)

	log.Printf("bridge: running, admin surface on %s", b.cfg.Admin.Listen)
	<-ctx.Done()
	log.Printf("bridge: shutting down")
}

// Registry exposes the device registry for embedding callers.
func (b *Bridge) Registry() *registry.Registry { return b.reg }

func secondsDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// localAddress finds the host's primary non-loopback address for the
// gateway-status announcement.
func localAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok && !ipn.IP.IsLoopback() && ipn.IP.To4() != nil {
				return ipn.IP.String()
			}
		}
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}
