package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/andygmpub/gpsbridge/internal/bridge"
	"github.com/andygmpub/gpsbridge/internal/channel"
	"github.com/andygmpub/gpsbridge/internal/provider"
	"github.com/andygmpub/gpsbridge/internal/service"
)

func main() {
	configPath := flag.String("config", "/etc/gpsbridge/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run with simulated GPS data")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] gpsbridge starting")

	cfg := bridge.LoadConfig(*configPath)
	if *demo {
		cfg.Provider.Type = "demo"
	}

	opener := providerOpener(cfg)

	ch, err := buildChannel(cfg)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}
	defer ch.Close()

	fwd := bridge.New(cfg, opener, ch)

	var battery *service.BatteryWatcher
	if cfg.Battery.Enabled {
		battery = service.NewBatteryWatcher(cfg.Battery.SysfsPath, cfg.Battery.ThresholdPct, cfg.Battery.PollSec)
	}
	svc := service.New(fwd, battery)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				svc.Deliver(service.SigAppControl)
			default:
				log.Printf("[main] received %v, shutting down", sig)
				svc.Deliver(service.SigTerminate)
			}
		}
	}()

	if err := svc.Run(context.Background()); err != nil {
		log.Fatalf("[main] %v", err)
	}
	log.Println("[main] gpsbridge stopped")
}

// providerOpener defers backend construction to Initialize so the forwarder
// owns the handle lifetime.
func providerOpener(cfg *bridge.Config) bridge.ProviderOpener {
	return func() (provider.Provider, error) {
		switch cfg.Provider.Type {
		case "gpsd":
			return provider.NewGPSD(cfg.Provider.GPSD), nil
		case "nmea":
			return provider.NewNMEA(cfg.Provider.NMEA), nil
		case "demo":
			return provider.NewDemo(), nil
		}
		return nil, fmt.Errorf("unknown provider type %q", cfg.Provider.Type)
	}
}

func buildChannel(cfg *bridge.Config) (channel.Channel, error) {
	switch cfg.Channel.Type {
	case "websocket":
		return channel.NewWebSocket(cfg.Channel.WebSocket, cfg.Channel.Endpoint), nil
	case "redis":
		return channel.NewRedis(cfg.Channel.Redis, cfg.Channel.Endpoint), nil
	}
	return nil, fmt.Errorf("unknown channel type %q", cfg.Channel.Type)
}
