package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/roboterm/internal/api"
	"github.com/user/roboterm/internal/config"
	"github.com/user/roboterm/internal/console"
	"github.com/user/roboterm/internal/db"
	"github.com/user/roboterm/internal/hub"
	"github.com/user/roboterm/internal/remote"
	"github.com/user/roboterm/internal/server"
)

var (
	version = "dev"
	commit  = ""
)

func buildVersion() string {
	if commit != "" {
		return fmt.Sprintf("%s (%s)", version, commit)
	}
	return version
}

func main() {
	var (
		configPath string
		port       int
		token      string
		printToken bool
	)

	rootCmd := &cobra.Command{
		Use:     "roboterm",
		Short:   "Headless dual-channel robot console daemon",
		Version: buildVersion(),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			return run(configPath, port, token, printToken)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "config file (default ~/.config/roboterm/config.yaml)")
	rootCmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	rootCmd.Flags().StringVar(&token, "token", "", "API token (overrides config)")
	rootCmd.Flags().BoolVar(&printToken, "print-token", false, "print the API token and exit")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string, port int, token string, printToken bool) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}
	if port != 0 {
		cfg.Port = port
	}
	if token != "" {
		cfg.Token = token
	}

	if printToken {
		fmt.Println(cfg.Token)
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	database, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		return err
	}
	defer database.Close()

	dial, err := buildDial(cfg)
	if err != nil {
		slog.Error("failed to configure ssh transport", "error", err)
		return err
	}

	var cons *console.Console
	h := hub.New(cfg.Token, func() []hub.ChannelInfo {
		if cons == nil {
			return nil
		}
		list := cons.Channels()
		out := make([]hub.ChannelInfo, len(list))
		for i, ch := range list {
			out[i] = hub.ChannelInfo{ID: ch.ID, Name: ch.Name, Kind: ch.Kind, State: ch.State}
		}
		return out
	})

	sessions := make([]console.SessionSpec, 0, len(cfg.Sessions))
	for _, s := range cfg.Sessions {
		sessions = append(sessions, console.SessionSpec{Name: s.Name, InitCommands: s.InitCommands})
	}
	terminals := make([]string, 0, len(cfg.Terminals))
	for _, t := range cfg.Terminals {
		terminals = append(terminals, t.Name)
	}

	cons = console.New(
		&settingsStore{repo: db.NewSettingsRepo(database.SQL())},
		console.Sinks{
			OnOutput: h.BroadcastOutput,
			OnStatus: func(session int, state console.State, reason string) {
				h.BroadcastStatus(session, string(state), reason)
			},
		},
		console.Options{
			Shell:          cfg.Shell,
			ConnectTimeout: cfg.ConnectTimeout(),
			InitDelay:      cfg.InitDelay(),
			SaveDebounce:   cfg.SaveDebounce(),
			ReplayLines:    cfg.ReplayLines,
			InitCommands:   cfg.InitCommands,
			Sessions:       sessions,
			Terminals:      terminals,
			Dial:           dial,
		},
	)
	defer cons.Stop()

	go h.Run(ctx)

	fmt.Printf("\nroboterm running at http://localhost:%d?token=%s\n\n", cfg.Port, cfg.Token)

	srv := server.New(cfg, h, api.NewRouter(cons, cfg.Token))
	if err := srv.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		return err
	}
	return nil
}

// buildDial translates the configured host key mode into the transport
// options every connect will use.
func buildDial(cfg *config.Config) (console.DialFunc, error) {
	opts := remote.Options{Timeout: cfg.ConnectTimeout()}
	switch cfg.HostKey {
	case config.HostKeyInsecureAutoAccept:
		// nil callback trusts any host, matching the historical behavior.
	case config.HostKeyKnownHosts:
		cb, err := remote.KnownHostsKey()
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
		opts.HostKey = cb
	default:
		return nil, fmt.Errorf("unknown host_key mode %q", cfg.HostKey)
	}
	return func(creds remote.Credentials) (console.Conn, error) {
		return remote.Dial(creds, opts)
	}, nil
}

// settingsStore adapts the sqlite repository to the console's
// persistence interface.
type settingsStore struct {
	repo *db.SettingsRepo
}

func (s *settingsStore) Save(creds remote.Credentials) error {
	return s.repo.Save(context.Background(), db.Settings{
		Host:     creds.Host,
		Username: creds.Username,
		Password: creds.Password,
	})
}

func (s *settingsStore) Load() (remote.Credentials, error) {
	settings, err := s.repo.Load(context.Background())
	if err != nil {
		return remote.Credentials{}, err
	}
	return remote.Credentials{
		Host:     settings.Host,
		Username: settings.Username,
		Password: settings.Password,
	}, nil
}
