package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/api"
	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/config"
	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/keepalive"
	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/permission"
	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/tour"
	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/transport"
	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	backendURL := flag.String("url", "", "Base URL of the session backend")
	relayURL := flag.String("relay", "", "WebSocket URL of the audio relay")
	logPath := flag.String("log", "", "Write logs to this file instead of stderr")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *backendURL != "" {
		cfg.Backend.BaseURL = *backendURL
	}
	if *relayURL != "" {
		cfg.Transport.RelayURL = *relayURL
	}

	// log.Printf output corrupts the alternate screen, so it goes to a file
	// or nowhere.
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		log.SetOutput(f)
	} else {
		log.SetOutput(io.Discard)
	}

	client := api.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)

	newEngine := func() transport.Engine {
		return transport.NewWSEngine(cfg.Transport.RelayURL, &transport.SilenceSource{}, transport.DiscardSink{})
	}
	keep := keepalive.NewNotifier(30 * time.Second)
	controller := transport.NewController(permission.GrantAll{}, keep, newEngine, cfg.Transport.AppID)

	orch := tour.New(client, controller, cfg.Reconciler.PollInterval, cfg.Reconciler.TickInterval)

	p := tea.NewProgram(tui.New(orch), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
