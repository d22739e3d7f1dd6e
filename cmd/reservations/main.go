package main

import (
	"context"
	"time"

	"mentorbook/internal/bookings/events"
	bookingshandler "mentorbook/internal/bookings/handler"
	"mentorbook/internal/bookings/reaper"
	bookingsrepo "mentorbook/internal/bookings/repository"
	bookingssvc "mentorbook/internal/bookings/service"
	bookingsvalidator "mentorbook/internal/bookings/validator"
	"mentorbook/internal/payments"
	slotshandler "mentorbook/internal/slots/handler"
	slotsrepo "mentorbook/internal/slots/repository"
	slotssvc "mentorbook/internal/slots/service"
	slotsvalidator "mentorbook/internal/slots/validator"
	"mentorbook/pkg/app"
	"mentorbook/pkg/config"
	"mentorbook/pkg/kafka"
	kafka_config "mentorbook/pkg/kafka/config"
	"mentorbook/pkg/lock"
)

const ServiceName = "reservations"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting Reservations service")

	cfg.SetMongo()
	cfg.SetRedis()
	defer cfg.GracefulShutdown()

	slotRepo := slotsrepo.NewMongoSlotRepository(cfg)
	bookingRepo := bookingsrepo.NewMongoBookingRepository(cfg)
	ensureIndexes(cfg, slotRepo, bookingRepo)

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.BookingEventsTopic, "")
	if err != nil {
		cfg.Log.Fatal("Failed to create booking events producer", "error", err)
	}

	locker := lock.NewRedisLock(cfg.Client.Redis)

	slotService := slotssvc.NewSlotService(
		slotRepo,
		locker,
		slotsvalidator.NewSlotValidator(cfg.Log),
		cfg,
	)
	bookingService := bookingssvc.NewBookingService(
		bookingRepo,
		slotRepo,
		locker,
		bookingsvalidator.NewBookingValidator(cfg.Log),
		events.NewKafkaPublisher(producer, cfg.Log),
		cfg,
	)
	cfg.Log.Info("Services initialized", "database", cfg.MongoDatabaseName)

	paymentConsumer, err := kafka.NewConsumer(
		kafkaCfg,
		cfg.PaymentEventsTopic,
		cfg.PaymentGroupID,
		cfg.PaymentDLQTopic,
		payments.NewVerificationHandler(bookingService, cfg.Log),
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create payment consumer", "error", err)
	}

	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	go func() {
		if err := paymentConsumer.Start(consumerCtx); err != nil {
			cfg.Log.Error("Payment consumer stopped", "error", err)
		}
	}()
	cfg.Log.Info("Payment consumer started",
		"topic", cfg.PaymentEventsTopic,
		"group_id", cfg.PaymentGroupID,
	)

	expiryReaper := reaper.New(bookingService, cfg)
	expiryReaper.Start()

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		slotshandler.NewSlotHandler(slotService, cfg.Log),
		bookingshandler.NewBookingHandler(bookingService, cfg.Log),
	)
	serverApp.RegisterOnShutdown(func() {
		expiryReaper.Stop()
		cancelConsumer()
		if err := paymentConsumer.Close(); err != nil {
			cfg.Log.Error("Failed to close payment consumer", "error", err)
		}
		if err := producer.Close(); err != nil {
			cfg.Log.Error("Failed to close booking events producer", "error", err)
		}
	})
	serverApp.Run()
}

func ensureIndexes(cfg *config.Config, slotRepo slotsrepo.SlotRepository, bookingRepo bookingsrepo.BookingRepository) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := slotRepo.EnsureIndexes(ctx); err != nil {
		cfg.Log.Fatal("Failed to ensure slot indexes", "error", err)
	}
	if err := bookingRepo.EnsureIndexes(ctx); err != nil {
		cfg.Log.Fatal("Failed to ensure booking indexes", "error", err)
	}
	cfg.Log.Info("Database indexes ensured")
}
