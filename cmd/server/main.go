package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc/health"

	"credential-lifecycle/internal/account"
	"credential-lifecycle/internal/audit"
	"credential-lifecycle/internal/config"
	"credential-lifecycle/internal/devinbox"
	healthhandler "credential-lifecycle/internal/health/handler"
	identityhandler "credential-lifecycle/internal/identity/handler"
	"credential-lifecycle/internal/identity/service"
	"credential-lifecycle/internal/mailer"
	"credential-lifecycle/internal/metrics"
	"credential-lifecycle/internal/platform/logging"
	"credential-lifecycle/internal/security"
	"credential-lifecycle/internal/server"
	"credential-lifecycle/internal/server/interceptors"
	"credential-lifecycle/internal/telemetry"
	"credential-lifecycle/internal/telemetry/otel"
	"credential-lifecycle/internal/telemetry/producer"
)

const (
	serviceVersion = "0.1.0"
	healthInterval = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "json").Error("config", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, otel.Config{
		Endpoint:       cfg.OTELEndpoint,
		Insecure:       cfg.OTELInsecure,
		ServiceName:    cfg.OTELServiceName,
		ServiceVersion: serviceVersion,
	})
	if err != nil {
		return err
	}
	providers.SetGlobal()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(context.Background()); err != nil {
			log.Warn("close stores", "error", err)
		}
	}()

	brokers := cfg.KafkaBrokersList()
	eventsProducer, err := producer.NewKafkaProducer(brokers, cfg.SecurityEventsTopic)
	if err != nil {
		return err
	}
	mailProducer, err := producer.NewKafkaProducer(brokers, cfg.ActivationEmailTopic)
	if err != nil {
		return err
	}
	defer eventsProducer.Close()
	defer mailProducer.Close()

	emitter := telemetry.MultiEmitter{otel.NewEventEmitter(providers.LoggerProvider)}
	var sender mailer.Sender = mailer.NewLogSender(log)
	if eventsProducer != nil {
		emitter = append(emitter, eventsProducer)
	}
	if mailProducer != nil {
		sender = mailer.NewKafkaSender(mailProducer)
		log.Info("kafka enabled", "brokers", brokers)
	}

	var inbox devinbox.Store
	if cfg.DevInboxEnabled {
		mem := devinbox.NewMemoryStore()
		inbox = mem
		sender = devinbox.NewSender(mem, sender, cfg.ActivationTTL())
		log.Warn("dev inbox enabled: activation tokens are retrievable over gRPC")
	}

	hasher := security.PasswordHasher(security.NewHasher(cfg.BcryptCost))
	if cfg.PasswordHasher == config.HasherArgon2id {
		hasher = security.NewArgon2idHasher(security.DefaultArgon2idParams())
	}
	tokens, err := security.NewTokenCodec(security.TokenConfig{
		Issuer:        cfg.JWTIssuer,
		AccessSecret:  []byte(cfg.JWTAccessSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
	})
	if err != nil {
		return err
	}

	m := metrics.New()
	auth, err := service.NewAuthService(service.Deps{
		Identities: st.identities,
		Sessions:   st.sessions,
		Hasher:     hasher,
		Tokens:     tokens,
		Mailer:     sender,
		Accounts:   account.NewLocalProvisioner(),
		Audit:      audit.NewLogger(emitter, log, interceptors.ClientIP),
		Metrics:    m,
		Logger:     log,
	}, service.Config{
		ActivationTTL:   cfg.ActivationTTL(),
		DefaultCurrency: cfg.DefaultCurrency,
	})
	if err != nil {
		return err
	}

	healthSrv := health.NewServer()
	monitor := healthhandler.NewMonitor(healthSrv, log, identityhandler.ServiceName)
	for name, p := range st.pingers {
		monitor.Add(name, p)
	}
	go monitor.Run(ctx, healthInterval)

	s := server.NewServer(server.Deps{
		Auth:   auth,
		Tokens: tokens,
		IdentityValidator: server.IdentityExists(func(ctx context.Context, id string) (bool, error) {
			ident, err := st.identities.GetByID(ctx, id)
			return ident != nil, err
		}),
		Health:         healthSrv,
		Telemetry:      emitter,
		Metrics:        m,
		Logger:         log,
		RequestTimeout: cfg.RequestTimeout(),
		DevInbox:       inbox,
		DevPending:     auth,
	})

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "error", err)
			}
		}()
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("gRPC server listening", "addr", cfg.GRPCAddr, "identity_store", cfg.IdentityStore, "session_store", cfg.SessionStore)
		serveErr <- s.Serve(lis)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	log.Info("shutting down gRPC server...")
	healthSrv.Shutdown()
	s.GracefulStop()
	if metricsSrv != nil {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shCtx)
		cancel()
	}
	// Let in-flight async audit and mail dispatches finish before flushing exporters.
	time.Sleep(telemetry.ShutdownDrainDuration)
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := providers.Shutdown(shCtx); err != nil {
		log.Warn("otel shutdown", "error", err)
	}
	log.Info("gRPC server stopped")
	return nil
}
