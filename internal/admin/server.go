// Package admin serves the local administration HTTP surface: device
// list, gateway health, command submission, and recent events, plus the
// Prometheus scrape endpoint.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/esp-sensor-hub/bridge/internal/frame"
	"github.com/esp-sensor-hub/bridge/internal/publish"
	"github.com/esp-sensor-hub/bridge/internal/queue"
	"github.com/esp-sensor-hub/bridge/internal/radio"
	"github.com/esp-sensor-hub/bridge/internal/registry"
)

// BrokerState reports the publish side's broker connectivity.
type BrokerState interface {
	Connected() bool
}

// EventSource hands back the recent-event ring kept by the publish
// side. Empty when no events have arrived.
type EventSource interface {
	RecentEvents() []publish.EventMessage
}

// Server is the admin HTTP surface.
type Server struct {
	reg      *registry.Registry
	commands *queue.CommandQueue
	decoded  *queue.DecodedQueue
	arb      *radio.Arbiter
	broker   BrokerState
	events   EventSource
}

// NewServer wires the surface. events may be nil; /api/events then
// always returns an empty list.
func NewServer(reg *registry.Registry, commands *queue.CommandQueue, decoded *queue.DecodedQueue,
	arb *radio.Arbiter, broker BrokerState, events EventSource) *Server {
	return &Server{reg: reg, commands: commands, decoded: decoded, arb: arb, broker: broker, events: events}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/devices", s.handleDevices)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/commands", s.handleCommands)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, listen string) {
	srv := &http.Server{Addr: listen, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("admin: serve on %s failed: %v", listen, err)
	}
}

type deviceJSON struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Location            string `json:"location"`
	SensorKind          string `json:"sensor_kind"`
	LastSeen            string `json:"last_seen"`
	RSSI                int8   `json:"rssi"`
	SNR                 int8   `json:"snr"`
	PacketCount         uint64 `json:"packet_count"`
	LastSeq             uint16 `json:"last_seq"`
	ReadIntervalSeconds uint16 `json:"read_interval_seconds"`
	DeepSleepSeconds    uint16 `json:"deep_sleep_seconds"`
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snaps := s.reg.Snapshot()
	out := make([]deviceJSON, 0, len(snaps))
	for _, d := range snaps {
		lastSeen := ""
		if !d.LastSeen.IsZero() {
			lastSeen = d.LastSeen.Format(time.RFC3339)
		}
		out = append(out, deviceJSON{
			ID:                  publish.HexID(d.ID),
			Name:                d.Name,
			Location:            d.Location,
			SensorKind:          string(d.SensorKind),
			LastSeen:            lastSeen,
			RSSI:                d.LastRSSI,
			SNR:                 d.LastSNR,
			PacketCount:         d.PacketCount,
			LastSeq:             d.LastSeq,
			ReadIntervalSeconds: d.ReadIntervalSeconds,
			DeepSleepSeconds:    d.DeepSleepSeconds,
		})
	}
	writeJSON(w, out)
}

type healthJSON struct {
	BrokerConnected   bool   `json:"broker_connected"`
	Devices           int    `json:"devices"`
	PendingCommands   int    `json:"pending_commands"`
	DecodedQueueDepth int    `json:"decoded_queue_depth"`
	RadioState        string `json:"radio_state"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, healthJSON{
		BrokerConnected:   s.broker.Connected(),
		Devices:           len(s.reg.Snapshot()),
		PendingCommands:   s.commands.Len(),
		DecodedQueueDepth: s.decoded.Depth(),
		RadioState:        s.arb.State().String(),
	})
}

type pendingJSON struct {
	CommandType byte   `json:"command_type"`
	Params      string `json:"params"`
	EnqueuedAt  string `json:"enqueued_at"`
	Retries     int    `json:"retries"`
}

// handleCommands submits a command on POST (same schema and validation
// as the broker command topic) and lists a device's pending commands on
// GET.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.submitCommand(w, r)
	case http.MethodGet:
		s.listPending(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) submitCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	id, req, cmd, err := publish.ParseCommand(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.commands.Enqueue(s.arb, id, cmd.CommandType, cmd.Parameter); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, publish.CommandAck{DeviceID: req.DeviceID, Action: req.Action, Status: "queued"})
}

func (s *Server) listPending(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("device_id")
	id, err := strconv.ParseUint(raw, 16, 64)
	if err != nil || len(raw) != 16 {
		http.Error(w, "device_id must be 16 hex characters", http.StatusBadRequest)
		return
	}

	entries := s.commands.SnapshotFor(frame.DeviceID(id))
	out := make([]pendingJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, pendingJSON{
			CommandType: e.CommandType,
			Params:      string(e.Params),
			EnqueuedAt:  e.EnqueuedAt.Format(time.RFC3339),
			Retries:     e.Retries,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	events := []publish.EventMessage{}
	if s.events != nil {
		events = s.events.RecentEvents()
	}
	writeJSON(w, events)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("admin: encode response: %v", err)
	}
}
