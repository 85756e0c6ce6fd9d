package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/maestro/backend/internal/bridge"
	"github.com/GriffinCanCode/maestro/backend/internal/client"
	"github.com/GriffinCanCode/maestro/backend/internal/events"
	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/maestro/backend/internal/orchestrator"
	"github.com/GriffinCanCode/maestro/backend/internal/providers/terminal"
	"github.com/GriffinCanCode/maestro/backend/internal/registry"
	"github.com/GriffinCanCode/maestro/backend/internal/relay"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

const unmountTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "maestro: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	backendURL := flag.String("backend", "", "Backend base URL (overrides config)")
	cwd := flag.String("cwd", "", "Working directory for new sessions")
	maxSessions := flag.Int("max", 0, "Session cap (overrides config)")
	local := flag.Bool("local", false, "Run the PTY backend in-process")
	list := flag.Bool("list", false, "Print backend sessions and exit")
	mode := flag.String("mode", "", "Assistant mode for new sessions: claude, gemini, codex or plain")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *backendURL != "" {
		cfg.Client.BackendURL = *backendURL
	}
	if *maxSessions > 0 {
		cfg.Orchestrator.MaxSessions = *maxSessions
	}
	if *cwd != "" {
		cfg.Orchestrator.Workspace = *cwd
	}
	if *mode != "" {
		cfg.Orchestrator.Mode = *mode
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *list {
		return printSessions(ctx, cfg.Client.BackendURL)
	}

	transport, closeTransport, err := connect(ctx, cfg, *local, logger)
	if err != nil {
		return err
	}
	defer closeTransport()

	b := bridge.New(transport, logger.Component("bridge"), bridge.DefaultOptions())

	reg := registry.New(b, logger.Component("registry"), nil)
	if err := reg.Fetch(ctx); err != nil {
		logger.Warn("Initial session fetch failed", zap.Error(err))
	}
	disposeRegistry := reg.Subscribe()
	defer disposeRegistry()

	var sessionCwd *string
	if cfg.Orchestrator.Workspace != "" {
		sessionCwd = &cfg.Orchestrator.Workspace
	}
	orch := orchestrator.New(b, orchestrator.Options{
		MaxSessions: cfg.Orchestrator.MaxSessions,
		Cwd:         sessionCwd,
		Mode:        types.Mode(cfg.Orchestrator.Mode),
		Logger:      logger.Component("orchestrator"),
	})

	pool := relay.NewPool(ctx, b, relay.NewStreamFactory(os.Stdout), logger.Component("relay"))
	defer pool.Close()

	ws := &workspace{
		ctx:    ctx,
		orch:   orch,
		pool:   pool,
		reg:    reg,
		branch: b,
		out:    os.Stdout,
		logger: logger.Component("workspace"),
	}
	removeObserver := orch.OnChange(ws.onChange)
	defer removeObserver()

	if err := orch.Mount(ctx); err != nil {
		logger.Warn("Initial spawn failed", zap.Error(err))
	}
	defer func() {
		uctx, cancel := context.WithTimeout(context.Background(), unmountTimeout)
		defer cancel()
		orch.Unmount(uctx)
		stop()
	}()

	go orch.RunReconciler(ctx, cfg.Orchestrator.ReconcileInterval.Duration)

	tracer := tracing.New("maestro", logger.Component("tracing"))
	defer tracer.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, err := parseLine(line)
			if err != nil {
				ws.printf("%v\n", err)
				continue
			}
			span, cctx := tracer.StartSpan(ctx, "repl "+cmd.name)
			err = ws.execute(cctx, cmd)
			quit := errors.Is(err, errQuit)
			if err != nil && !quit {
				span.SetError(err)
				ws.printf("%v\n", err)
			}
			span.Finish()
			tracer.Submit(span)
			if quit {
				return nil
			}
		}
	}
}

// connect returns a transport to either a remote or an in-process backend
func connect(ctx context.Context, cfg *config.Config, local bool, logger *logging.Logger) (bridge.Transport, func(), error) {
	if local {
		hub := events.NewHub(events.Options{Logger: logger.Component("events")})
		manager := terminal.NewManager(terminal.OptionsFromConfig(cfg.Terminal), hub, logger.Component("pty"), nil)
		provider := terminal.NewProvider(manager, nil)

		closeFn := func() {
			sctx, cancel := context.WithTimeout(context.Background(), unmountTimeout)
			defer cancel()
			if err := manager.Shutdown(sctx); err != nil {
				logger.Warn("Backend shutdown incomplete", zap.Error(err))
			}
			hub.Close()
		}
		return bridge.NewLocalTransport(provider, hub), closeFn, nil
	}

	if err := client.WaitReady(ctx, cfg.Client.BackendURL, cfg.Client.ReadyTimeout.Duration, logger.Component("client")); err != nil {
		return nil, nil, err
	}
	t, err := client.Dial(ctx, client.WebSocketURL(cfg.Client.BackendURL), logger.Component("client"))
	if err != nil {
		return nil, nil, err
	}
	return t, func() { _ = t.Close() }, nil
}

func printSessions(ctx context.Context, baseURL string) error {
	sessions, err := client.NewAPI(baseURL).Sessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tSTATUS\tMODE\tBRANCH\n")
	for _, s := range sessions {
		branch := "-"
		if s.Branch != nil {
			branch = *s.Branch
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.ID, s.Status, s.Mode, branch)
	}
	return tw.Flush()
}
