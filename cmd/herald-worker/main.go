package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DKorytin/Herald/internal/channels"
	config "github.com/DKorytin/Herald/internal/config/worker"
	"github.com/DKorytin/Herald/internal/dispatch"
	"github.com/DKorytin/Herald/internal/domain/notification"
	"github.com/DKorytin/Herald/internal/notify"
	"github.com/DKorytin/Herald/internal/obs"
	"github.com/DKorytin/Herald/internal/obs/retry"
	kafkax "github.com/DKorytin/Herald/internal/repository/kafka"
	pg "github.com/DKorytin/Herald/internal/repository/postgres"
	"github.com/DKorytin/Herald/internal/services/ingest"
	"github.com/DKorytin/Herald/internal/worker"
	"go.uber.org/zap"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func wire(cfg *config.Config, db *pg.DB, cons *kafkax.Consumer, dlq *kafkax.Producer, hub *channels.SocketHub, l *zap.Logger) (*worker.Runner, *ingest.Controller) {
	notifs := pg.NewNotificationRepo(db)
	recipients := pg.NewRecipientRepo(db)
	tx := pg.NewTransactor(db, l)

	jobs := pg.NewJobRepo(db, tx, cfg.Queue.LeaseTTL, cfg.Queue.BaseDelay)
	jobs.OnDead(worker.DeadLetter(l, dlq))

	senders := map[notification.Channel]notification.Sender{
		notification.ChannelEmail:  channels.NewEmail(cfg.SMTP, recipients, l),
		notification.ChannelSMS:    channels.NewSMS(cfg.SMS, recipients, l),
		notification.ChannelPush:   channels.NewPush(cfg.Push, recipients, l),
		notification.ChannelSocket: hub,
	}

	dispatcher := dispatch.New(l, notifs, senders)
	svc := notify.NewService(l, dispatcher, jobs, notifs, systemClock{})

	runner := worker.NewRunner(l, jobs, dispatcher,
		cfg.Queue.Slots, cfg.Queue.PollInterval, cfg.Queue.JobTimeout)

	ctrl := &ingest.Controller{
		Log: l,
		Sub: cons,
		UC: &ingest.Handler{
			Svc: svc,
			Pol: retry.DefaultEnqueuePolicy(l),
			Log: l,
		},
	}
	return runner, ctrl
}

func main() {
	// init
	root, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}

	l.Info("starting herald-worker",
		zap.Any("kafka_in", cfg.In),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
		zap.String("ws_addr", cfg.Server.WSAddr),
		zap.Int("slots", cfg.Queue.Slots),
	)

	// otel
	otelCloser, err := obs.SetupOTel(root, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Warn("otel init", zap.Error(err))
	}
	defer func() {
		if otelCloser != nil {
			_ = otelCloser.Shutdown(context.Background())
		}
	}()

	// db
	db, err := pg.New(root, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	l.Info("db connected")

	// metrics
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Pool.Ping(hctx)
	}, l)

	// kafka
	cons := kafkax.BootstrapConsumer(root, &kafkax.ConsumerConfig{
		Brokers: cfg.In.Brokers,
		GroupID: cfg.In.GroupID,
		Topic:   cfg.In.Topic,
		Logger:  l,
	}, l)
	defer func() { _ = cons.Close() }()

	dlq := kafkax.NewProducer(cfg.Out.Brokers, cfg.Out.Topic).WithLogger(l)
	defer func() { _ = dlq.Close() }()

	// websocket hub
	hub := channels.NewSocketHub(l)
	wsMux := http.NewServeMux()
	wsMux.Handle("/ws/notifications", hub)
	wsSrv := &http.Server{
		Addr:        cfg.Server.WSAddr,
		Handler:     wsMux,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		l.Info("ws listening", zap.String("addr", cfg.Server.WSAddr))
		if err := wsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("ws server error", zap.Error(err))
		}
	}()

	// wiring
	runner, ctrl := wire(cfg, db, cons, dlq, hub, l)

	// start
	errCh := make(chan error, 2)
	go func() { errCh <- runner.Run(root) }()
	go func() { errCh <- ctrl.Run(root) }()

	// main loop
	pending := 2
	select {
	case <-root.Done():
		l.Info("shutdown signal")
	case err = <-errCh:
		pending--
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runtime error", zap.Error(err))
		}
	}
	stop()

	// The runner keeps already-leased jobs running to ack or nack; wait for
	// it here so the process never abandons an in-flight dispatch.
	deadline := time.After(cfg.Queue.JobTimeout + 5*time.Second)
drain:
	for ; pending > 0; pending-- {
		select {
		case err = <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				l.Error("runtime error", zap.Error(err))
			}
		case <-deadline:
			l.Warn("drain deadline hit; exiting with work unfinished")
			break drain
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = wsSrv.Shutdown(shCtx)
	hub.Close()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
