package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"stayguard/internal/app/commands"
	bookingapp "stayguard/internal/app/handlers/booking"
	inventoryapp "stayguard/internal/app/handlers/inventory"
	"stayguard/internal/app/middleware"
	appoutbox "stayguard/internal/app/outbox"
	"stayguard/internal/app/queries"
	"stayguard/internal/app/uow"
	"stayguard/internal/infra/broker/kafka"
	"stayguard/internal/infra/config"
	mongodb "stayguard/internal/infra/db/mongo"
	ginserver "stayguard/internal/infra/http/gin"
	"stayguard/internal/infra/obs"
	infraoutbox "stayguard/internal/infra/outbox"
	"stayguard/internal/infra/storage/memory"
	"stayguard/internal/infra/sweep"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	app, err := buildApplication(cfg, logger)
	if err != nil {
		logger.Error("application bootstrap failed", "error", err)
		os.Exit(1)
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: app.ready,
	}, app.handlers)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", cfg.StorageMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		err := app.sweeper.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if app.worker != nil {
		group.Go(func() error {
			err := app.worker.Run(groupCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("outbox worker disabled, no kafka brokers configured")
	}

	waitErr := group.Wait()
	for _, closeFn := range app.closers {
		if err := closeFn(); err != nil {
			logger.Warn("close failed during shutdown", "error", err)
		}
	}
	if waitErr != nil {
		logger.Error("service stopped with error", "error", waitErr)
		os.Exit(1)
	}
	logger.Info("service stopped")
}

type application struct {
	handlers ginserver.Handlers
	sweeper  *sweep.Sweeper
	worker   *infraoutbox.Worker
	ready    func() error
	closers  []func() error
}

func buildApplication(cfg config.Config, logger *slog.Logger) (application, error) {
	var (
		uowFactory  uow.UoWFactory
		outboxStore appoutbox.Outbox
		workerStore infraoutbox.Store
		idStore     middleware.IdempotencyStore
		ready       = func() error { return nil }
		closers     []func() error
	)

	switch cfg.StorageMode {
	case "mongo":
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return application{}, err
		}
		mongoOutbox := infraoutbox.NewMongoStore(client.DB)
		bookingRepo := mongodb.NewBookingRepository(client.DB)
		mongoIdStore := mongodb.NewIdempotencyStore(client.DB, cfg.IdempotencyTTL)
		indexCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := bookingRepo.EnsureIndexes(indexCtx); err != nil {
			return application{}, err
		}
		if err := mongoIdStore.EnsureIndexes(indexCtx); err != nil {
			return application{}, err
		}
		if err := mongoOutbox.EnsureIndexes(indexCtx); err != nil {
			return application{}, err
		}
		uowFactory = mongodb.Factory{
			DB:           client.DB,
			ScheduleRepo: mongodb.NewScheduleRepository(client.DB),
			BookingRepo:  bookingRepo,
		}
		outboxStore = mongoOutbox
		workerStore = mongoOutbox
		idStore = mongoIdStore
		ready = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}
		closers = append(closers, func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Close(closeCtx)
		})
	default:
		memOutbox := memory.NewOutbox()
		uowFactory = memory.Factory{
			ScheduleRepo: memory.NewScheduleRepository(),
			BookingRepo:  memory.NewBookingRepository(),
		}
		outboxStore = memOutbox
		workerStore = memOutbox
		idStore = memory.NewIdempotencyStore(cfg.IdempotencyTTL)
	}

	encoder := appoutbox.JSONEventEncoder{}

	commandBus := commands.NewInMemoryBus()
	reserveHandler := &bookingapp.ReserveHandler{
		UoWFactory:      uowFactory,
		Outbox:          outboxStore,
		Encoder:         encoder,
		ReservationHold: cfg.ReservationHold,
		SaveAttempts:    cfg.SaveAttempts,
	}
	commands.RegisterHandler(commandBus, bookingapp.ReserveCommand{}.Key(), reserveHandler)

	transitions := &bookingapp.TransitionHandler{
		UoWFactory:   uowFactory,
		Outbox:       outboxStore,
		Encoder:      encoder,
		SaveAttempts: cfg.SaveAttempts,
	}
	commands.RegisterHandler(commandBus, bookingapp.ConfirmCommand{}.Key(),
		commands.HandlerFunc[bookingapp.ConfirmCommand, *bookingapp.TransitionResult](transitions.Confirm))
	commands.RegisterHandler(commandBus, bookingapp.CancelCommand{}.Key(),
		commands.HandlerFunc[bookingapp.CancelCommand, *bookingapp.TransitionResult](transitions.Cancel))
	commands.RegisterHandler(commandBus, bookingapp.CheckInCommand{}.Key(),
		commands.HandlerFunc[bookingapp.CheckInCommand, *bookingapp.TransitionResult](transitions.CheckIn))
	commands.RegisterHandler(commandBus, bookingapp.CheckOutCommand{}.Key(),
		commands.HandlerFunc[bookingapp.CheckOutCommand, *bookingapp.TransitionResult](transitions.CheckOut))
	commands.RegisterHandler(commandBus, bookingapp.ExpireCommand{}.Key(),
		commands.HandlerFunc[bookingapp.ExpireCommand, *bookingapp.TransitionResult](transitions.Expire))

	blockHandler := &inventoryapp.BlockRangeHandler{
		UoWFactory:   uowFactory,
		Outbox:       outboxStore,
		Encoder:      encoder,
		SaveAttempts: cfg.SaveAttempts,
	}
	commands.RegisterHandler(commandBus, inventoryapp.BlockRangeCommand{}.Key(), blockHandler)
	releaseHandler := &inventoryapp.ReleaseRangeHandler{
		UoWFactory:   uowFactory,
		Outbox:       outboxStore,
		Encoder:      encoder,
		SaveAttempts: cfg.SaveAttempts,
	}
	commands.RegisterHandler(commandBus, inventoryapp.ReleaseRangeCommand{}.Key(), releaseHandler)

	queryBus := queries.NewInMemoryBus()
	queries.RegisterHandler(queryBus, bookingapp.GetBookingQuery{}.Key(), &bookingapp.GetBookingHandler{UoWFactory: uowFactory})
	queries.RegisterHandler(queryBus, inventoryapp.GetCalendarQuery{}.Key(), &inventoryapp.GetCalendarHandler{UoWFactory: uowFactory})

	commandBusWithMiddleware := middleware.ChainCommands(
		commandBus,
		middleware.Idempotency(idStore, nil),
		middleware.Transaction(uowFactory, nil),
		middleware.OutboxFlush(outboxStore),
	)
	queryBusWithMiddleware := middleware.ChainQueries(queryBus)

	app := application{
		handlers: ginserver.Handlers{
			Booking: ginserver.BookingHandler{
				Commands: commandBusWithMiddleware,
				Queries:  queryBusWithMiddleware,
				Logger:   logger,
			},
			Inventory: ginserver.InventoryHandler{
				Commands: commandBusWithMiddleware,
				Queries:  queryBusWithMiddleware,
				Logger:   logger,
			},
		},
		sweeper: &sweep.Sweeper{
			Bus:        commandBusWithMiddleware,
			UoWFactory: uowFactory,
			Interval:   cfg.SweepInterval,
			BatchSize:  cfg.SweepBatchSize,
			Logger:     logger,
		},
		ready:   ready,
		closers: closers,
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return application{}, err
		}
		app.closers = append(app.closers, producer.Close)
		app.worker = &infraoutbox.Worker{
			Store:       workerStore,
			Producer:    producer,
			Interval:    cfg.OutboxPollInterval,
			TopicPrefix: cfg.KafkaTopicPrefix,
			Source:      "stayguard",
			Logger:      logger,
		}
	}

	return app, nil
}
