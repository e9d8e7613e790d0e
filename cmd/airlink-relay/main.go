package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/config"
	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/relay"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	port := flag.Int("port", 0, "Override relay port")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *port > 0 {
		cfg.Relay.Port = *port
	}

	store := relay.NewStore(cfg.Relay.SessionDuration)
	for _, seed := range cfg.Relay.Licenses {
		store.SeedLicense(seed.Code, seed.MaxGuests, seed.Minutes)
		log.Printf("seeded license %s (%d guests, %d min)", seed.Code, seed.MaxGuests, seed.Minutes)
	}
	if len(cfg.Relay.Licenses) == 0 {
		// A bare relay is useless without at least one activatable code.
		store.SeedLicense("DEV000", 10, 90)
		log.Println("no licenses configured, seeded DEV000")
	}

	hub := relay.NewHub()
	server := relay.NewServer(store, hub)

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		os.Exit(0)
	}()

	if err := relay.ListenAndServe(cfg.Relay.Host, cfg.Relay.Port, mux); err != nil {
		log.Fatalf("Relay error: %v", err)
	}
}
