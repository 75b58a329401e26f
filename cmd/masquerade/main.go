// Masquerade - speak through named profiles in chat
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/dotsetgreg/masquerade/pkg/bot"
	"github.com/dotsetgreg/masquerade/pkg/bus"
	"github.com/dotsetgreg/masquerade/pkg/channels"
	"github.com/dotsetgreg/masquerade/pkg/config"
	"github.com/dotsetgreg/masquerade/pkg/health"
	"github.com/dotsetgreg/masquerade/pkg/logger"
	"github.com/dotsetgreg/masquerade/pkg/profiles"
	"github.com/dotsetgreg/masquerade/pkg/store"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const (
	appName         = "masquerade"
	shutdownTimeout = 10 * time.Second
)

func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func formatBuildInfo() (build string, goVer string) {
	build = buildTime
	goVer = goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return
}

func main() {
	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger.Sync()
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	debug      bool
}

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".masquerade", "config.json")
}

func (o *globalOptions) path() string {
	if strings.TrimSpace(o.configPath) != "" {
		return o.configPath
	}
	return defaultConfigPath()
}

// load reads the config and applies the log level, with --debug winning.
func (o *globalOptions) load() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.path())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := logger.ParseLevel(cfg.Log.Level)
	if o.debug {
		level = logger.DEBUG
	}
	logger.SetLevel(level)
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	backend, err := store.NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, backend)
	if err != nil {
		_ = backend.Close(ctx)
		return nil, err
	}
	return st, nil
}

// runBot wires transport, store and dispatcher together and blocks until ctx
// is cancelled or done closes. Shutdown stops intake first, then drains the
// dispatcher, then closes storage.
func runBot(ctx context.Context, cfg *config.Config, transport channels.Transport, msgBus *bus.MessageBus, st *store.Store, done <-chan struct{}) error {
	b := bot.New(bot.Options{Transport: transport, Store: st, Bus: msgBus, Config: cfg.Bot})
	manager := channels.NewManager(transport)

	if err := manager.StartAll(ctx); err != nil {
		return err
	}

	var hs *health.Server
	if cfg.Gateway.Enabled {
		hs = health.NewServer(cfg.Gateway.Host, cfg.Gateway.Port, formatVersion(), health.Sources{
			Bot:      b.Stats,
			Store:    st,
			Channels: manager.Status,
			Ready:    manager.Ready,

			ExposeProfiles: cfg.Gateway.ExposeProfiles,
		})
		if err := hs.Start(); err != nil {
			_ = manager.StopAll(ctx)
			return err
		}
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		b.Run(runCtx)
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
	logger.InfoC("main", "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if hs != nil {
		if err := hs.Stop(shutdownCtx); err != nil {
			logger.WarnCF("main", "Status server shutdown failed", map[string]any{"error": err.Error()})
		}
	}
	if err := manager.StopAll(shutdownCtx); err != nil {
		logger.WarnCF("main", "Channel shutdown failed", map[string]any{"error": err.Error()})
	}
	msgBus.Close()
	cancelRun()
	<-stopped
	return st.Close(shutdownCtx)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd(opts *globalOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(true); err != nil {
		return fmt.Errorf("configuration error in %s: %w", opts.path(), err)
	}

	ctx, stop := signalContext()
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	msgBus := bus.NewMessageBus()
	discord, err := channels.NewDiscordChannel(cfg.Discord, cfg.Bot.StatusText, msgBus)
	if err != nil {
		_ = st.Close(ctx)
		return err
	}

	fmt.Printf("✓ Storage: %s\n", cfg.Storage.Driver)
	if cfg.Gateway.Enabled {
		fmt.Printf("✓ Status endpoints at http://%s:%d/health, /ready and /status\n", cfg.Gateway.Host, cfg.Gateway.Port)
	}
	fmt.Println("Press Ctrl+C to stop")

	return runBot(ctx, cfg, discord, msgBus, st, nil)
}

func consoleCmd(opts *globalOptions, userID string, memory bool) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	if memory {
		cfg.Storage.Driver = config.DriverMemory
	}
	cfg.Gateway.Enabled = false
	if err := cfg.Validate(false); err != nil {
		return fmt.Errorf("configuration error in %s: %w", opts.path(), err)
	}

	ctx, stop := signalContext()
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	msgBus := bus.NewMessageBus()
	console := channels.NewConsoleChannel(channels.ConsoleOptions{UserID: userID, BotName: appName}, msgBus)
	return runBot(ctx, cfg, console, msgBus, st, console.Done())
}

func importCmd(opts *globalOptions, userID, path string) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(false); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if int64(len(data)) > cfg.Bot.ImportMaxBytes {
		return fmt.Errorf("%s is larger than %d bytes", path, cfg.Bot.ImportMaxBytes)
	}
	export, err := profiles.ParseExport(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	ps, err := export.Profiles(userID)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	n, err := st.ImportProfiles(ctx, userID, ps)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Imported %d profiles for %s\n", n, userID)
	return nil
}

func profilesCmd(opts *globalOptions, userID string) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(false); err != nil {
		return err
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	ps := st.GetProfiles(userID)
	if len(ps) == 0 {
		fmt.Printf("No profiles for %s\n", userID)
		return nil
	}
	orNone := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}
	for _, p := range ps {
		fmt.Printf("%-32s  %-32s  %-10s  %s\n", p.Name, orNone(p.DisplayName), orNone(p.Colour), orNone(p.Avatar))
	}
	for key, name := range st.Defaults(userID) {
		scope := string(key.Scope)
		if key.ScopeID != "" {
			scope += ":" + key.ScopeID
		}
		fmt.Printf("default %s -> %s\n", scope, name)
	}
	return nil
}

func statusCmd(opts *globalOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	configPath := opts.path()

	fmt.Printf("%s Status\n", appName)
	fmt.Printf("Version: %s\n", formatVersion())
	if build, _ := formatBuildInfo(); build != "" {
		fmt.Printf("Build: %s\n", build)
	}
	fmt.Println()

	mark := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "✗"
	}
	_, statErr := os.Stat(configPath)
	fmt.Println("Config:", configPath, mark(statErr == nil))
	fmt.Println("Discord token:", mark(strings.TrimSpace(cfg.Discord.Token) != ""))
	fmt.Println("Storage driver:", cfg.Storage.Driver)
	if cfg.Storage.Driver == config.DriverSQLite {
		_, err := os.Stat(cfg.SQLitePath())
		fmt.Println("SQLite DB:", cfg.SQLitePath(), mark(err == nil))
	}
	if err := cfg.Validate(true); err != nil {
		fmt.Println("Configuration:", err)
	} else {
		fmt.Println("Configuration: ✓")
	}
	return nil
}

func onboardCmd(opts *globalOptions, force bool) error {
	path := opts.path()
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}
	if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("✓ Wrote default config to %s\n", path)
	fmt.Println("Set discord.token (or MASQUERADE_DISCORD_TOKEN) and run `masquerade serve`.")
	return nil
}
