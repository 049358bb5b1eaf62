package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liuran001/SongProxy-Go/proxy"
	"github.com/liuran001/SongProxy-Go/proxy/config"
	logpkg "github.com/liuran001/SongProxy-Go/proxy/logger"
	"github.com/liuran001/SongProxy-Go/proxy/platform"
	platformplugins "github.com/liuran001/SongProxy-Go/proxy/platform/plugins"
	"github.com/liuran001/SongProxy-Go/proxy/primary"
	"github.com/liuran001/SongProxy-Go/proxy/stream"
	"github.com/liuran001/SongProxy-Go/proxy/upstream"
	"github.com/liuran001/SongProxy-Go/proxy/web"
)

// ShutdownTimeout bounds the graceful HTTP shutdown.
const ShutdownTimeout = 5 * time.Second

// App wires all application dependencies.
type App struct {
	Config       *config.Config
	Logger       *logpkg.Logger
	Orchestrator *platform.Orchestrator
	Stream       *stream.Service
	Server       *web.Server
	Build        BuildInfo

	serveErr chan error
}

// BuildInfo provides build-time metadata.
type BuildInfo struct {
	RuntimeVer string
	BinVersion string
	CommitSHA  string
	BuildTime  string
	BuildArch  string
}

// New builds the application container.
func New(ctx context.Context, configPath string, build BuildInfo) (*App, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log := logpkg.New(logpkg.Options{
		Level:     conf.GetString("LOG_LEVEL"),
		Format:    conf.GetString("LOG_FORMAT"),
		AddSource: conf.GetBool("LOG_SOURCE"),
		File:      conf.GetString("LOG_FILE"),
	})

	orchestrator, probes, err := buildOrchestrator(conf, log)
	if err != nil {
		return nil, err
	}

	userAgent := conf.GetString("USER_AGENT")
	streamService := stream.NewService(stream.Options{
		Resolver: orchestrator,
		Client: upstream.New(upstream.Options{
			Name:        "assets",
			UserAgent:   userAgent,
			MaxRetries:  conf.GetInt("MAX_RETRIES"),
			BackoffStep: time.Duration(conf.GetInt("RETRY_BACKOFF_MS")) * time.Millisecond,
			Logger:      log,
		}),
		Logger: log,
	})

	probeClient := upstream.New(upstream.Options{Name: "health", UserAgent: userAgent, MaxRetries: 0, Logger: log})
	health := web.NewHealthCache(
		web.UpstreamProbe(probeClient, probes, log),
		conf.GetDuration("HEALTH_TTL"),
		conf.GetDuration("HEALTH_TIMEOUT"),
	)

	var uaFilter *web.UAFilter
	if conf.GetBool("UA_FILTER") {
		uaFilter = web.NewUAFilter(conf.GetStringSlice("UA_ALLOW"))
	}

	bitrate, err := platform.ParseBitrate(conf.GetString("BITRATE"))
	if err != nil {
		log.Warn("invalid BITRATE; using default", "value", conf.GetString("BITRATE"), "default", platform.DefaultBitrate)
	}

	server := web.NewServer(web.Options{
		Host:     conf.GetString("HOST"),
		Port:     conf.GetInt("PORT"),
		BaseURL:  strings.TrimSpace(conf.GetString("BASE_URL")),
		Bitrate:  bitrate,
		Finder:   orchestrator,
		Relay:    streamService,
		Health:   health,
		UAFilter: uaFilter,
		Logger:   log,
	})

	return &App{
		Config:       conf,
		Logger:       log,
		Orchestrator: orchestrator,
		Stream:       streamService,
		Server:       server,
		Build:        build,
	}, nil
}

// NewOrchestrator builds only the source chain. The search command uses it
// without starting the HTTP server.
func NewOrchestrator(conf *config.Config, log proxy.Logger) (*platform.Orchestrator, error) {
	orchestrator, _, err := buildOrchestrator(conf, log)
	return orchestrator, err
}

func buildOrchestrator(conf *config.Config, log proxy.Logger) (*platform.Orchestrator, []string, error) {
	log = proxy.OrNop(log)
	userAgent := conf.GetString("USER_AGENT")
	retries := conf.GetInt("MAX_RETRIES")
	backoff := time.Duration(conf.GetInt("RETRY_BACKOFF_MS")) * time.Millisecond

	primaryClient := primary.New(primary.Options{
		BaseURL: conf.GetString("PRIMARY_API_URL"),
		APIKey:  conf.GetString("PRIMARY_API_KEY"),
		Quota: primary.NewQuotaDetector(
			primary.ParseStatuses(conf.GetStringSlice("QUOTA_STATUS")),
			conf.GetStringSlice("QUOTA_KEYWORDS"),
		),
		HTTP: upstream.New(upstream.Options{
			Name:        "primary",
			UserAgent:   userAgent,
			MaxRetries:  retries,
			BackoffStep: backoff,
			Logger:      log,
		}),
		Logger: log,
	})
	if strings.TrimSpace(conf.GetString("PRIMARY_API_KEY")) == "" {
		log.Warn("PRIMARY_API_KEY is empty; the primary resolver may reject parse calls")
	}

	deps := platformplugins.Deps{
		Logger:  log,
		Primary: primaryClient,
		HTTP: upstream.New(upstream.Options{
			Name:        "plugins",
			UserAgent:   userAgent,
			MaxRetries:  retries,
			BackoffStep: backoff,
			Logger:      log,
		}),
	}

	if unknown := unknownPlugins(conf.PluginNames(), platformplugins.Names()); len(unknown) > 0 {
		log.Warn("ignoring config sections for unregistered plugins", "plugins", unknown)
	}

	registry := platform.NewRegistry()
	var fallback platform.Fallback
	probes := []string{primaryClient.BaseURL()}

	for _, name := range platformplugins.Names() {
		enabled := true
		if pluginCfg, ok := conf.GetPluginConfig(name); ok {
			if _, hasKey := pluginCfg["enabled"]; hasKey {
				enabled = conf.GetPluginBool(name, "enabled")
			}
		}
		if !enabled {
			log.Info("plugin disabled by config", "plugin", name)
			continue
		}

		factory, ok := platformplugins.Get(name)
		if !ok {
			continue
		}
		contrib, err := factory(conf, deps)
		if err != nil {
			log.Error("plugin init failed", "plugin", name, "error", err)
			continue
		}
		if contrib == nil {
			continue
		}
		if contrib.Adapter != nil {
			if err := registry.Register(contrib.Adapter); err != nil {
				return nil, nil, fmt.Errorf("register %s: %w", name, err)
			}
		}
		if contrib.Fallback != nil {
			if fallback == nil {
				fallback = contrib.Fallback
			} else {
				log.Warn("multiple fallback providers configured; ignoring extra", "plugin", name)
			}
		}
		if contrib.Probe != "" {
			probes = append(probes, contrib.Probe)
		}
	}

	priority, rejected := platform.ParsePriority(conf.GetStringSlice("SOURCE_PRIORITY"))
	if len(rejected) > 0 {
		log.Warn("ignoring unknown SOURCE_PRIORITY entries", "entries", rejected)
	}
	if len(priority) == 0 {
		log.Warn("SOURCE_PRIORITY is empty; using default order", "default", platform.DefaultPriority)
	}
	force := conf.GetBool("FORCE_FALLBACK")
	if force && fallback == nil {
		log.Warn("FORCE_FALLBACK is set but no fallback api is configured; every search will be not found")
	}

	orchestrator := platform.NewOrchestrator(registry, fallback, platform.OrchestratorOptions{
		Priority:      priority,
		ForceFallback: force,
		Logger:        log,
	})
	status := orchestrator.Status()
	log.Info("source chain ready", "priority", status.Priority, "force_fallback", status.ForceFallback, "fallback", status.Fallback)
	return orchestrator, probes, nil
}

func unknownPlugins(configured, registered []string) []string {
	known := make(map[string]struct{}, len(registered))
	for _, name := range registered {
		known[name] = struct{}{}
	}
	var unknown []string
	for _, name := range configured {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// Start launches the HTTP server in the background.
func (a *App) Start(ctx context.Context) error {
	a.serveErr = make(chan error, 1)
	go func() {
		a.serveErr <- a.Server.Start()
	}()
	if a.Logger != nil {
		a.Logger.Info("songproxy started", "version", a.Build.BinVersion, "commit", a.Build.CommitSHA, "addr", a.Server.Addr())
	}
	return nil
}

// Wait blocks until ctx is done or the server stops on its own.
func (a *App) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-a.serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// Shutdown releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error

	if a.Server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			if a.Logger != nil {
				a.Logger.Error("http server shutdown failed", "error", err)
			}
			firstErr = fmt.Errorf("shutdown http server: %w", err)
		}
	}

	if a.Logger != nil {
		a.Logger.Info("songproxy stopped")
		if err := a.Logger.Close(); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("close logger: %w", err)
			}
		}
	}

	return firstErr
}
