package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/markjakearzadon/walletpay-gobackend.git/internal/bus"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/bus/membus"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/bus/redisbus"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/config"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/db"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/handlers"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/services"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/storage/mongodb"
)

func main() {
	// Load .env
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Error loading .env: %s", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.MongoURI == "" {
		log.Fatal("MONGOURI environment variable not set")
	}

	client, err := db.Connect(cfg.MongoURI)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	stores := mongodb.New(client.Database(cfg.MongoDatabase))
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := stores.EnsureIndexes(ctx); err != nil {
			log.Printf("Warning: failed to ensure indexes: %v", err)
		}
		cancel()
	}

	eventBus, err := buildBus(cfg)
	if err != nil {
		log.Fatalf("Failed to build event bus: %v", err)
	}
	defer func() {
		if err := eventBus.Close(); err != nil {
			log.Printf("Error closing event bus: %v", err)
		}
	}()

	verifier := services.NewBcryptVerifier()
	mailer := buildMailer(cfg)

	otpService := services.NewOtpService(stores.Challenges, stores.Transactions, verifier, mailer, services.OtpConfig{
		CodeLength:  cfg.OtpCodeLength,
		TTL:         cfg.OtpTTL,
		MaxAttempts: cfg.OtpMaxAttempts,
	})
	transactionService := services.NewTransactionService(stores.Transactions, otpService, eventBus)
	walletService := services.NewWalletService(stores.Wallets, stores.Settlements, stores.Users, eventBus, verifier)
	userService := services.NewUserService(stores.Users)

	// Choreography: the coordinator reacts to the wallet service's events
	// and vice versa, correlated by transaction id.
	if err := eventBus.Subscribe(bus.TopicTransactionRequested, transactionService.HandleTransactionRequested); err != nil {
		log.Fatalf("Failed to subscribe to %s: %v", bus.TopicTransactionRequested, err)
	}
	if err := eventBus.Subscribe(bus.TopicOtpVerified, walletService.HandleOtpVerified); err != nil {
		log.Fatalf("Failed to subscribe to %s: %v", bus.TopicOtpVerified, err)
	}
	if err := eventBus.Subscribe(bus.TopicTransactionCompleted, transactionService.HandleTransactionCompleted); err != nil {
		log.Fatalf("Failed to subscribe to %s: %v", bus.TopicTransactionCompleted, err)
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := services.NewSweeper(stores.Transactions, cfg.SweepInterval, cfg.SweepDeadline)
	sweeperDone := make(chan struct{})
	go func() {
		sweeper.Run(sweepCtx)
		close(sweeperDone)
	}()

	walletHandler := handlers.NewWalletHandler(walletService)
	transactionHandler := handlers.NewTransactionHandler(transactionService)
	userHandler := handlers.NewUserHandler(userService)

	// Set up router
	router := mux.NewRouter()
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "HEAD")

	router.HandleFunc("/api/user", userHandler.CreateUser).Methods("POST")
	router.HandleFunc("/api/user/{userID}", userHandler.GetUser).Methods("GET")

	router.HandleFunc("/api/wallet", walletHandler.CreateWallet).Methods("POST")
	router.HandleFunc("/api/wallet/{walletID}", walletHandler.GetWallet).Methods("GET")
	router.HandleFunc("/api/wallet/{walletID}/transaction", walletHandler.RequestTransaction).Methods("POST")

	router.HandleFunc("/api/transaction/{transactionID}", transactionHandler.GetTransaction).Methods("GET")
	router.HandleFunc("/api/transaction/{transactionID}/verify", transactionHandler.VerifyOtp).Methods("POST")
	router.HandleFunc("/api/transaction/{transactionID}/otp/resend", transactionHandler.ResendOtp).Methods("POST")

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server running on port %s", cfg.Port)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received shutdown signal: %s", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Printf("Server stopped unexpectedly: %v", err)
		}
	}

	// Wait for any sweep in flight before the deferred mongo disconnect.
	stopSweeper()
	<-sweeperDone
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}

func buildBus(cfg config.Config) (bus.Bus, error) {
	if cfg.RedisAddr == "" {
		log.Println("REDIS_ADDR not set, using in-process event bus")
		return membus.New(), nil
	}
	busCfg := redisbus.DefaultConfig(cfg.RedisAddr, "walletpay", cfg.BusConsumer)
	busCfg.Username = cfg.RedisUsername
	busCfg.Password = cfg.RedisPassword
	return redisbus.New(busCfg)
}

func buildMailer(cfg config.Config) services.Mailer {
	if cfg.SMTPHost == "" {
		log.Println("SMTP_HOST not set, otp mail delivery disabled")
		return &services.LogMailer{}
	}
	return &services.SMTPMailer{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}
}
