package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"github.com/tarancss/chainquery/api"
	"github.com/tarancss/chainquery/auth"
	"github.com/tarancss/chainquery/dataquery"
	"github.com/tarancss/chainquery/discovery"
	"github.com/tarancss/chainquery/lib/bootstrap"
	"github.com/tarancss/chainquery/lib/cache"
	"github.com/tarancss/chainquery/lib/config"
	"github.com/tarancss/chainquery/lib/msg"
	"github.com/tarancss/chainquery/lib/msg/amqp"
	"github.com/tarancss/chainquery/lib/pool"
	"github.com/tarancss/chainquery/lib/store"
	"github.com/tarancss/chainquery/lib/store/db"
	"github.com/tarancss/chainquery/metadata"
)

// service is what a successful bootstrap attempt builds.
type service struct {
	db     store.DB
	values *cache.Cache[string, discovery.ValueList]
	engine *discovery.Engine
}

// listeners holds the bound endpoints, each accepting at most maxConnections connections at once.
type listeners struct {
	http, https net.Listener
}

func listen(conf config.ServiceConfig) (listeners, error) {
	var ls listeners

	bind := func(port string) (net.Listener, error) {
		ln, err := net.Listen("tcp", net.JoinHostPort(conf.Endpoint, port))
		if err != nil {
			return nil, err
		}

		return netutil.LimitListener(ln, conf.Pools.MaxConnections), nil
	}

	var err error

	if conf.Port != "" {
		if ls.http, err = bind(conf.Port); err != nil {
			return ls, err
		}
	}

	if conf.SSLPort != "" {
		if ls.https, err = bind(conf.SSLPort); err != nil {
			ls.close()

			return ls, err
		}
	}

	return ls, nil
}

func (ls listeners) close() {
	for _, ln := range []net.Listener{ls.http, ls.https} {
		if ln != nil {
			_ = ln.Close()
		}
	}
}

// initService opens the backing store and discovers the platforms. Whatever it opened is closed again on failure.
func initService(ctx context.Context, conf config.ServiceConfig, io *pool.Pool, log *slog.Logger) (*service, error) {
	dh, err := db.New(conf.DB.Type, conf.DB.Conn, conf.DB.MaxOpenConns)
	if err != nil {
		return nil, err
	}

	if _, err = pool.Run(ctx, io, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, dh.Ping(ctx)
	}); err != nil {
		_ = dh.Close()

		return nil, fmt.Errorf("cannot reach database: %w", err)
	}

	values := cache.New[string, discovery.ValueList]("attribute_values", conf.Cache.TTL)
	engine := discovery.New(discovery.Config{
		Platforms:            conf.Platforms,
		HighCardinalityLimit: conf.Cache.HighCardinalityLimit,
		MaxResults:           conf.Cache.MaxResults,
		Overrides:            conf.Metadata,
	}, dh, io, values, log)

	if err = engine.Init(ctx); err != nil {
		_ = dh.Close()

		return nil, err
	}

	return &service{db: dh, values: values, engine: engine}, nil
}

// pooledKeySource loads keys on the I/O pool.
type pooledKeySource struct {
	src  store.KeySource
	pool *pool.Pool
}

func (p pooledKeySource) APIKeys(ctx context.Context) ([]string, error) {
	return pool.Run(ctx, p.pool, p.src.APIKeys)
}

func newBroker(conf config.BrokerConfig, log *slog.Logger) msg.Broker {
	if conf.Type != config.AMQP {
		return msg.Nop{}
	}

	mb, err := amqp.New(conf.Conn)
	if err != nil {
		log.Error("Cannot connect to message broker, usage events disabled", slog.Any("error", err))

		return msg.Nop{}
	}

	if err = mb.Setup(); err != nil {
		log.Error("Cannot set up message broker, usage events disabled", slog.Any("error", err))

		_ = mb.Close()

		return msg.Nop{}
	}

	return mb
}

func serveMetrics(addr string, log *slog.Logger) *http.Server {
	h := http.NewServeMux()
	h.Handle("/metrics", promhttp.Handler())

	s := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Info("Serving metrics API", slog.String("addr", addr))

		if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	return s
}

// run binds the listeners, bootstraps the service and serves the API until ctx is done.
// warmUp runs fill in the background. The returned function cancels it and waits for it to end.
func warmUp(ctx context.Context, fill func(context.Context) error, log *slog.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		if err := fill(ctx); err != nil {
			log.Warn("Attribute values cache partially warmed up", slog.Any("error", err))

			return
		}

		log.Info("Attribute values cache warmed up")
	}()

	return func() {
		cancel()
		<-done
	}
}

func run(ctx context.Context, conf config.ServiceConfig, log *slog.Logger) error {
	ls, err := listen(conf)
	if err != nil {
		return fmt.Errorf("cannot bind listener: %w", err)
	}

	io := pool.New("io", conf.Pools.IOWorkers)

	release := func() {
		ls.close()

		closeCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownGrace)
		defer cancel()

		if err := io.Close(closeCtx); err != nil {
			log.Warn("I/O pool did not drain", slog.Any("error", err))
		}
	}

	svc, err := bootstrap.Attempt(ctx, func(ctx context.Context) (*service, error) {
		return initService(ctx, conf, io, log)
	}, conf.MaxRetry(), time.Now().Add(conf.Startup.Deadline),
		bootstrap.WithDelay(conf.Startup.RetryDelay), bootstrap.WithLogger(log))
	if err != nil {
		release()

		return err
	}

	go svc.values.Start()

	// misses populate lazily, so serving does not wait for the warm-up
	stopWarmUp := func() {}
	if conf.Cache.WarmUp {
		stopWarmUp = warmUp(ctx, svc.engine.InitAttributesCache, log)
	}

	// API keys
	var sources []store.KeySource

	ks, err := db.NewKeySource(conf.Security.KeySource, svc.db, conf.DB.MaxOpenConns)
	if err != nil {
		log.Error("Cannot open API key source", slog.Any("error", err))
	} else if ks != nil {
		sources = append(sources, pooledKeySource{src: ks, pool: io})

		if ks != store.KeySource(svc.db) {
			defer func() { _ = db.Close(ks) }()
		}
	}

	keys := auth.NewKeyStore(conf.Security.APIKeys, sources, log)
	if err = keys.Refresh(ctx); err != nil {
		log.Warn("API keys not loaded, retrying on schedule", slog.Any("error", err))
	}

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()

	go keys.Run(refreshCtx, conf.Security.KeySource.Refresh)

	mb := newBroker(conf.Broker, log)

	var metrics *http.Server
	if conf.Metrics.Enabled {
		metrics = serveMetrics(conf.Metrics.Addr, log)
	}

	// build the API
	meta := metadata.New(svc.engine, conf.Metadata)
	data := dataquery.New(meta, svc.db, io, conf.Query)
	authn := auth.New(keys, conf.Security.AllowBlank, log)
	srv := api.New(meta, data, authn, mb, api.Info{Application: "chainquery", Version: version,
		GoVersion: runtime.Version()}, conf.Server, log)

	errc := make(chan error, 2)

	if ls.http != nil {
		go func() { errc <- srv.Serve(ls.http) }()
	}

	if ls.https != nil {
		go func() { errc <- srv.ServeTLS(ls.https, conf.SSLCert, conf.SSLKey) }()
	}

	var serveErr error

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case serveErr = <-errc:
		log.Error("API server failed", slog.Any("error", serveErr))
	}

	// do last actions and wait for in-flight requests to end
	stopCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownGrace)
	defer cancel()

	if errStop := srv.Stop(stopCtx); errStop != nil {
		log.Warn("API did not drain", slog.Any("error", errStop))
	}

	stopWarmUp()
	stopRefresh()
	release()
	svc.values.Stop()

	if errClose := svc.db.Close(); errClose != nil {
		log.Warn("Error closing database", slog.Any("error", errClose))
	}

	if errClose := mb.Close(); errClose != nil {
		log.Warn("Error closing message broker", slog.Any("error", errClose))
	}

	if metrics != nil {
		_ = metrics.Shutdown(stopCtx)
	}

	return serveErr
}
