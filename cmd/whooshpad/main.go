// Whooshpad - remote control relay for MyWhoosh
// Serves a mobile control pad on the local network and translates taps
// and holds into synthesized keyboard input for the game.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"whooshpad/internal/action"
	"whooshpad/internal/config"
	"whooshpad/internal/logger"
	"whooshpad/internal/network"
	"whooshpad/internal/osutils"
	"whooshpad/internal/relay"
	"whooshpad/internal/synth"
	"whooshpad/internal/tray"
)

var (
	version   = "0.1.0"
	port      = flag.Int("port", 0, "Port to listen on (default 8765)")
	bindings  = flag.String("bindings", "", "Path to a YAML bindings file")
	logLevel  = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	noTray    = flag.Bool("no-tray", false, "Run without a system tray icon")
	showVer   = flag.Bool("version", false, "Show version")
	listBound = flag.Bool("list-actions", false, "List bound actions and exit")
)

func main() {
	// Optional .env next to the binary; absence is fine
	godotenv.Load()
	flag.Parse()

	if *showVer {
		fmt.Printf("whooshpad version %s\n", version)
		return
	}

	cfgMgr, err := config.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize config: %v\n", err)
		os.Exit(1)
	}
	if err := cfgMgr.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load config: %v\n", err)
	}
	cfgMgr.ApplyEnv()

	cfg := cfgMgr.Get()
	if *port != 0 {
		cfg.Port = *port
	}
	if *bindings != "" {
		cfg.BindingsPath = *bindings
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *noTray {
		cfg.DisableTray = true
	}

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	zlog.Logger = log

	table, err := loadTable(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load bindings")
	}

	if *listBound {
		for _, id := range table.IDs() {
			fmt.Println(id)
		}
		return
	}

	runService(cfg, table, log)
}

func loadTable(cfg *config.Config, log zerolog.Logger) (*action.Table, error) {
	if cfg.BindingsPath == "" {
		return action.DefaultTable(), nil
	}
	log.Info().Str("path", cfg.BindingsPath).Msg("loading bindings file")
	return action.LoadTable(cfg.BindingsPath)
}

func runService(cfg *config.Config, table *action.Table, log zerolog.Logger) {
	if cfg.ManageFirewall {
		if err := osutils.EnsureFirewallRule(cfg.Port); err != nil {
			log.Warn().Err(err).Msg("firewall rule setup failed; phones may not reach the relay")
		}
	}

	srv := relay.NewServer(table, synth.New(), relay.Config{
		Logger:         log,
		DebounceWindow: time.Duration(cfg.DebounceMs) * time.Millisecond,
	})

	go func() {
		if err := srv.Start(cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("relay server stopped")
		}
	}()

	printBanner(cfg.Port)

	// Ctrl+C and SIGTERM shut everything down
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if cfg.DisableTray {
		<-sigCh
		log.Info().Msg("shutting down")
		srv.Stop()
		return
	}

	t := tray.New("Whooshpad - remote control for MyWhoosh")
	t.AddMenuItem("Open control page", func() {
		url := controlURL(cfg.Port)
		if err := osutils.OpenBrowser(url); err != nil {
			log.Warn().Err(err).Str("url", url).Msg("failed to open browser")
		}
	})
	t.AddSeparator()
	t.AddMenuItem("Quit", func() {
		t.Stop()
	})

	go func() {
		<-sigCh
		t.Stop()
	}()

	// Blocks until Quit; systray requires the main thread
	t.Run()

	log.Info().Msg("shutting down")
	srv.Stop()
}

func controlURL(port int) string {
	ip, err := network.GetLocalIP()
	if err != nil {
		ip = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", ip, port)
}

func printBanner(port int) {
	fmt.Println("==================================================")
	fmt.Println("  Whooshpad - Remote Control for MyWhoosh")
	fmt.Println("==================================================")
	fmt.Println()
	fmt.Println("  Open on your mobile:")
	if ips, err := network.GetLocalIPs(); err == nil && len(ips) > 0 {
		for _, ip := range ips {
			fmt.Printf("  http://%s:%d\n", ip, port)
		}
	} else {
		fmt.Printf("  http://localhost:%d\n", port)
	}
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println("==================================================")
}
