package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/zxkws/mcp-router/internal/alert"
	"github.com/zxkws/mcp-router/internal/audit"
	"github.com/zxkws/mcp-router/internal/breaker"
	"github.com/zxkws/mcp-router/internal/config"
	"github.com/zxkws/mcp-router/internal/frontend"
	"github.com/zxkws/mcp-router/internal/health"
	"github.com/zxkws/mcp-router/internal/metrics"
	"github.com/zxkws/mcp-router/internal/principal"
	"github.com/zxkws/mcp-router/internal/ratelimit"
	"github.com/zxkws/mcp-router/internal/router"
	"github.com/zxkws/mcp-router/internal/sandbox"
	"github.com/zxkws/mcp-router/internal/upstream"
)

var breakerStates = []string{string(breaker.Closed), string(breaker.Open), string(breaker.HalfOpen)}

func main() {
	configPath := flag.String("config", "mcprouter.config.json", "path to the router's JSON config file")
	stdioToken := flag.String("token", "", "bearer token to authenticate the stdio session as, when auth.tokens is non-empty")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resolver := config.ChainResolver{Env: config.EnvResolver{}}
	if os.Getenv("VAULT_ADDR") != "" {
		vaultResolver, err := config.NewVaultResolverFromEnv(os.Getenv("VAULT_MOUNT"))
		if err != nil {
			log.Fatalf("vault client: %v", err)
		}
		resolver.Vault = vaultResolver
	}

	cfg, err := config.Load(ctx, *configPath, resolver)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	cfgRef := config.NewRef(cfg)
	mgr := upstream.NewManager(nil)
	br := breaker.New(breaker.Config{
		FailureThreshold: cfg.Routing.CircuitBreaker.FailureThreshold,
		OpenDuration:     time.Duration(cfg.Routing.CircuitBreaker.OpenMs) * time.Millisecond,
	})
	rl := ratelimit.NewStore()
	reg := metrics.New()
	br.OnOpen(func(name string) {
		reg.CircuitOpensTotal.WithLabelValues(name).Inc()
		reg.SetCircuitState(name, string(breaker.Open), breakerStates)
	})
	auditWriter := audit.NewWriter(os.Stdout, cfg.Audit.Enabled, cfg.Audit.LogArguments, cfg.Audit.MaxArgumentChars)
	sandboxPolicy := sandbox.Policy{
		AllowedCommands: cfg.Sandbox.Stdio.AllowedCommands,
		AllowedCwdRoots: cfg.Sandbox.Stdio.AllowedCwdRoots,
		AllowedEnvKeys:  cfg.Sandbox.Stdio.AllowedEnvKeys,
		InheritEnvKeys:  cfg.Sandbox.Stdio.InheritEnvKeys,
	}

	classifier := func(err error) bool {
		ok, _ := upstream.Classify(err, nil)
		return ok
	}
	healthChecker := health.New(mgr, br, cfg.Routing.HealthChecks, classifier, reg)
	if cfg.Alerts.Discord.Enabled {
		healthChecker.SetAlerter(alert.NewDiscord(
			cfg.Alerts.Discord.WebhookURL,
			cfg.Alerts.Discord.OpenChecksThreshold,
			time.Duration(cfg.Alerts.Discord.CooldownMs)*time.Millisecond,
		))
	}
	if cfg.Routing.HealthChecks.Enabled {
		go healthChecker.Run(ctx, func() map[string]config.UpstreamConfig { return cfgRef.Current().Upstreams }, sandboxPolicy)
	}

	resolverRef := principal.NewResolverRef(principal.ResolverFromConfig(cfg.Tokens, cfg.Projects))

	watcher := config.NewWatcher(*configPath, cfgRef, resolver, log.Default())
	watcher.OnReload(func(nc *config.NormalizedConfig) {
		mgr.Reconcile(nc.Upstreams)
		resolverRef.Publish(principal.ResolverFromConfig(nc.Tokens, nc.Projects))
		log.Printf("config reloaded: %d upstream(s)", len(nc.Upstreams))
	})
	go func() {
		if err := watcher.Run(ctx); err != nil {
			log.Printf("config watcher stopped: %v", err)
		}
	}()

	newEngine := func(p principal.Principal) *router.Engine {
		return router.NewEngine(p, cfgRef, mgr, br, healthChecker, rl, reg, auditWriter, sandboxPolicy, nil, nil)
	}

	shutdown := func() {
		mgr.CloseAll()
		healthChecker.Stop()
	}

	if cfg.Listen.Stdio {
		runStdio(ctx, cancel, newEngine, mgr, healthChecker, resolverRef, *stdioToken)
		return
	}

	runHTTP(ctx, cancel, cfg, newEngine, resolverRef, healthChecker, reg, mgr, shutdown)
}

func runStdio(
	ctx context.Context,
	cancel context.CancelFunc,
	newEngine frontend.EngineFactory,
	mgr *upstream.Manager,
	healthChecker *health.Checker,
	resolverRef *principal.ResolverRef,
	token string,
) {
	p, err := resolverRef.AuthFromToken(token)
	if err != nil {
		log.Fatalf("stdio auth: %v", err)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	if err := frontend.ServeStdio(ctx, frontend.PipeConfig{
		NewEngine: newEngine,
		Principal: p,
		Manager:   mgr,
		Health:    healthChecker,
	}); err != nil {
		log.Printf("stdio session ended: %v", err)
	}
}

func runHTTP(
	ctx context.Context,
	cancel context.CancelFunc,
	cfg *config.NormalizedConfig,
	newEngine frontend.EngineFactory,
	resolverRef *principal.ResolverRef,
	healthChecker *health.Checker,
	reg *metrics.Registry,
	mgr *upstream.Manager,
	shutdown func(),
) {
	host := cfg.Listen.HTTP.Host
	port := cfg.Listen.HTTP.Port
	if !cfg.Listen.HTTP.PortExplicit {
		if raw := os.Getenv("PORT"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				port = v
			} else {
				log.Printf("ignoring PORT=%q: %v", raw, err)
			}
		}
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	srv := frontend.NewHTTPServer(frontend.HTTPConfig{
		Addr:           addr,
		MCPPath:        cfg.Listen.HTTP.Path,
		NewEngine:      newEngine,
		AuthResolver:   resolverRef,
		Health:         healthChecker,
		Metrics:        reg,
		Manager:        mgr,
		Admin:          cfg.Admin,
		ServiceVersion: router.ServerVersion,
	})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("shutting down...")
		cancel()
	}()

	log.Printf("mcp-router listening on %s", addr)
	if err := srv.ListenAndServe(ctx); err != nil {
		shutdown()
		log.Fatalf("server error: %v", err)
	}
	shutdown()
}
