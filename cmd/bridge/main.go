package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	bridge "github.com/esp-sensor-hub/bridge"
	"github.com/esp-sensor-hub/bridge/internal/config"
	"github.com/esp-sensor-hub/bridge/internal/publish"
	"github.com/esp-sensor-hub/bridge/internal/radio/stubdriver"
)

const Version = "v1.0.0"

func main() {
	var (
		configFile = pflag.StringP("config", "c", "bridge.yaml", "Configuration file")
		radioKind  = pflag.String("radio", "stub", "Radio driver (stub for host-side development)")
		logLevel   = pflag.String("log-level", "", "Log level (info, debug); overrides the config file")
		version    = pflag.BoolP("version", "v", false, "Print version and exit")
	)
	pflag.Parse()

	if *version {
		fmt.Printf("esp-sensor-hub bridge %s\n", Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("bridge: %v", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if cfg.Logging.Level == "debug" {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}

	log.Printf("esp-sensor-hub bridge %s", Version)

	drv, err := newRadioDriver(*radioKind)
	if err != nil {
		log.Fatalf("bridge: %v", err)
	}

	client := publish.NewPahoClient(publish.BrokerOptions{
		Host:           cfg.Broker.Host,
		Port:           cfg.Broker.Port,
		Username:       cfg.Broker.Username,
		Password:       cfg.Broker.Password,
		ClientIDPrefix: cfg.Broker.ClientIDPrefix,
	})

	b, err := bridge.New(cfg, drv, client)
	if err != nil {
		log.Fatalf("bridge: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Printf("bridge: received %v, stopping", s)
		cancel()
	}()

	b.Run(ctx)
}

// newRadioDriver resolves the --radio flag. Real transceiver drivers
// are deployment-specific and injected here; the stub keeps the bridge
// runnable on a development host without hardware.
func newRadioDriver(kind string) (bridge.Driver, error) {
	switch kind {
	case "stub":
		log.Printf("bridge: using the stub radio driver (no hardware attached)")
		return stubdriver.New(), nil
	default:
		return nil, fmt.Errorf("unknown radio driver %q", kind)
	}
}
