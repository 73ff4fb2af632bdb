// Package agent assembles a running log collector from configuration: the
// event loop, the TCP server and its inputs, the routing table with its
// outputs, the state store and the metrics endpoint.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/logwire/logwire/pkg/config"
	"github.com/logwire/logwire/pkg/emit"
	"github.com/logwire/logwire/pkg/input"
	"github.com/logwire/logwire/pkg/logging"
	"github.com/logwire/logwire/pkg/metrics"
	"github.com/logwire/logwire/pkg/reactor"
	"github.com/logwire/logwire/pkg/storage"
	"github.com/logwire/logwire/pkg/tcpserver"
)

// Agent is a configured collector. Start it once, then Stop it.
type Agent struct {
	cfg    *config.Config
	log    *slog.Logger
	stdout io.Writer

	loop    *reactor.Loop
	server  *tcpserver.Server
	emitter *emit.Emitter
	table   *emit.Table
	store   *storage.JSONStore
	inputs  []*input.TCP

	registry   *metrics.Registry
	metricsLn  net.Listener
	metricsSrv *http.Server
	loopDone   chan struct{}
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the agent logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Agent) {
		a.log = logging.OrNop(log)
	}
}

// WithStdout redirects stdout outputs.
func WithStdout(w io.Writer) Option {
	return func(a *Agent) {
		a.stdout = w
	}
}

// New builds an agent from cfg. Outputs connect here; nothing listens
// until Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Agent, error) {
	a := &Agent{
		cfg:    cfg,
		log:    logging.Nop(),
		stdout: os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}

	b := &outputBuilder{log: a.log, stdout: a.stdout}
	var routes []emit.Route
	for _, rc := range cfg.Routes {
		outputs, err := b.build(ctx, rc.Outputs)
		if err != nil {
			for _, r := range routes {
				_ = closeAll(r.Outputs)
			}
			return nil, fmt.Errorf("route %q: %w", rc.Match, err)
		}
		routes = append(routes, emit.Route{Pattern: rc.Match, Outputs: outputs})
	}
	table, err := emit.NewTable(routes, emit.WithLogger(a.log))
	if err != nil {
		for _, r := range routes {
			_ = closeAll(r.Outputs)
		}
		return nil, err
	}
	a.table = table
	a.emitter = emit.NewEmitter(table)

	if cfg.Storage.Path != "" {
		perm, err := cfg.Storage.FileMode()
		if err != nil {
			_ = table.Close()
			return nil, err
		}
		dirPerm, err := cfg.Storage.DirMode()
		if err != nil {
			_ = table.Close()
			return nil, err
		}
		a.store = storage.NewJSONStore(cfg.Storage.Path,
			storage.WithPermission(perm),
			storage.WithDirectoryPermission(dirPerm),
			storage.WithPrettyPrint(cfg.Storage.Pretty()),
		)
		if err := a.store.Load(); err != nil {
			_ = table.Close()
			return nil, err
		}
	}

	// Listener instruments bind to the default registry when created.
	a.registry = metrics.Init()
	a.loop = reactor.New(reactor.WithLogger(a.log), reactor.WithFaultHandler(a.fault))
	a.server = tcpserver.NewServer(a.loop, tcpserver.WithLogger(a.log), tcpserver.WithDetacher(tcpserver.InProcess{}))

	for _, lc := range cfg.Listeners {
		tc, err := tcpConfig(lc)
		if err != nil {
			_ = table.Close()
			return nil, err
		}
		opts := []input.Option{input.WithLogger(a.log)}
		if a.store != nil {
			opts = append(opts, input.WithStorage(a.store))
		}
		a.inputs = append(a.inputs, input.NewTCP(tc, a.emitter, opts...))
	}
	return a, nil
}

func tcpConfig(lc config.ListenerConfig) (input.TCPConfig, error) {
	keepalive, err := lc.KeepaliveDuration()
	if err != nil {
		return input.TCPConfig{}, fmt.Errorf("listener %s: %w", lc.ID, err)
	}
	var linger *time.Duration
	if lc.LingerTimeout != nil {
		linger = tcpserver.Duration(time.Duration(*lc.LingerTimeout) * time.Second)
	}
	return input.TCPConfig{
		ID:                lc.ID,
		Tag:               lc.Tag,
		Bind:              lc.Bind,
		Port:              lc.Port,
		Delimiter:         lc.Delimiter,
		Format:            lc.Format,
		Encoding:          lc.Encoding,
		SourceAddressKey:  lc.SourceAddressKey,
		SourceHostnameKey: lc.SourceHostnameKey,
		Options: tcpserver.Options{
			Name:            lc.ID,
			Keepalive:       keepalive,
			LingerTimeout:   linger,
			Backlog:         lc.Backlog,
			ReusePort:       lc.ReusePort,
			Workers:         lc.Workers,
			ResolveHostname: lc.ResolveHostname,
		},
	}, nil
}

// fault receives task failures from the loop. Callback failures have
// already closed their connection.
func (a *Agent) fault(err error) {
	var cbErr *tcpserver.CallbackError
	if errors.As(err, &cbErr) {
		a.log.Warn("connection closed after callback failure", logging.KeyConnID, cbErr.ConnID, logging.KeyRemoteAddr, cbErr.Remote, "error", cbErr.Err)
		return
	}
	a.log.Error("event loop task failed", "error", err)
}

// Emitter returns the router inputs emit through.
func (a *Agent) Emitter() *emit.Emitter { return a.emitter }

// Inputs returns the configured inputs.
func (a *Agent) Inputs() []*input.TCP { return a.inputs }

// Server returns the TCP server.
func (a *Agent) Server() *tcpserver.Server { return a.server }

// MetricsAddr returns the bound metrics address, or "" when disabled.
func (a *Agent) MetricsAddr() string {
	if a.metricsLn == nil {
		return ""
	}
	return a.metricsLn.Addr().String()
}

// Start runs the loop, binds every input and starts the metrics endpoint.
// A bind failure stops whatever was started and is returned.
func (a *Agent) Start(ctx context.Context) error {
	a.loopDone = make(chan struct{})
	go func() {
		defer close(a.loopDone)
		if err := a.loop.Run(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("event loop stopped", "error", err)
		}
	}()

	for _, in := range a.inputs {
		if err := in.Start(a.server); err != nil {
			_ = a.Stop(ctx)
			return fmt.Errorf("input %s: %w", in.ID(), err)
		}
	}

	if a.cfg.Metrics.Addr != "" {
		if err := a.startMetrics(); err != nil {
			_ = a.Stop(ctx)
			return err
		}
	}

	a.log.Info("agent started", "inputs", len(a.inputs), "routes", len(a.cfg.Routes))
	return nil
}

func (a *Agent) startMetrics() error {
	ln, err := net.Listen("tcp", a.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", a.cfg.Metrics.Addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.registry.Handler())
	a.metricsLn = ln
	a.metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server failed", "error", err)
		}
	}()
	a.log.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}

// Stop detaches every listener, closes connections, persists input state,
// releases the listeners and stops the loop and the outputs.
func (a *Agent) Stop(ctx context.Context) error {
	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.server.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, in := range a.inputs {
		in.Persist()
	}
	if a.store != nil {
		if err := a.store.Save(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.server.Terminate(ctx); err != nil {
		errs = append(errs, err)
	}

	a.loop.Stop()
	if a.loopDone != nil {
		select {
		case <-a.loopDone:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}

	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.table.Close(); err != nil {
		errs = append(errs, err)
	}
	a.log.Info("agent stopped")
	return errors.Join(errs...)
}
