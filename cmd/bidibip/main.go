package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rahul/bidibip/internal/advertising"
	"github.com/rahul/bidibip/internal/gateway"
	"github.com/rahul/bidibip/internal/governance"
	"github.com/rahul/bidibip/internal/observability"
	"github.com/rahul/bidibip/internal/router"
	"github.com/rahul/bidibip/internal/store"
	"github.com/rahul/bidibip/pkg/config"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bidibip",
	Short: "Discord bot running the job ad wizard",
	RunE:  runBot,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the chat platform and serve the wizards",
	RunE:  runBot,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bidibip %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to the JSON or YAML configuration")
	rootCmd.AddCommand(runCmd, versionCmd, tokensCmd)
}

func newGateway(cfg *config.Config) (gateway.Gateway, error) {
	name, gw := cfg.GetGateway()
	switch name {
	case "discord":
		return gateway.NewDiscordGateway(gw.Token, gw.GuildID)
	case "telegram":
		return gateway.NewTelegramGateway(gw.Token)
	}
	return nil, errors.New("no gateway is enabled")
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.App.Dashboard {
		observability.PrintBanner()
		observability.InitializeTerminal()
		defer observability.CleanupTerminal()
	}

	// Route all log output through the terminal mutex so it never
	// interrupts the dashboard's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	logger := observability.NewLogger(cfg.App.LogDir)

	docs, err := store.NewDocumentStore(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer docs.Close()

	policy, err := governance.NewDefaultAnswerPolicy(cfg.Advertising.DenyPatterns...)
	if err != nil {
		return err
	}

	gw, err := newGateway(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ads := advertising.NewModule(advertising.Config{
		InProgressChannel: cfg.Advertising.InProgressChannel,
		AdChannel:         cfg.Advertising.AdChannel,
		MaxAdPerUser:      cfg.Advertising.MaxAdPerUser,
	}, gw, docs, policy, logger)
	if err := ads.Load(ctx); err != nil {
		return err
	}

	modules := router.NewRouter(gw, logger)
	modules.Register(ads)

	if cfg.App.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		srv := &http.Server{Addr: cfg.App.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Warning: metrics server stopped: %v", err)
			}
		}()
		defer srv.Close()
	}

	// Start Live Resource Dashboard (1-second updates)
	if cfg.App.Dashboard && observability.IsInteractive() {
		go func() {
			ticker := time.NewTicker(1 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					observability.PrintLiveStatus()
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
				logger.LogHeartbeat()
			}
		}
	}()

	// Start Gateway in a goroutine so we can wait for context in the main loop
	go func() {
		if err := gw.Start(ctx, modules, modules.Commands()); err != nil {
			log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
			stop() // stop caller if gateway dies
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("\033[95m[ EXIT ] CORE DE-INITIALIZED. GOODBYE.\033[0m")
	return nil
}
