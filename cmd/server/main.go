/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the club dues engine server: storage, external
  adapters, escalation engine, daily scheduler, HTTP API, graceful
  shutdown.

COMMAND-LINE FLAGS:
  -port      HTTP server port (default: 8080)
  -db        SQLite database path (default: dues.db; ":memory:" works)
  -cron      Daily tick schedule (default: "0 7 * * *")
  -no-tick   Disable the daily scheduler (manual runs only)

ENVIRONMENT:
  POSTMARK_TOKEN   Email provider server token
  FROM_EMAIL       Sender address for reminder emails
  PLATFORM_URL     Community platform API base URL
  PLATFORM_TOKEN   Community platform API token

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop the scheduler, drain HTTP (30s timeout),
  close the database.

SEE ALSO:
  - api/server.go: Router configuration
  - dues/escalation.go: The engine itself
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/club-engine/api"
	"github.com/warp/club-engine/dispatch"
	"github.com/warp/club-engine/dues"
	"github.com/warp/club-engine/store/sqlite"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "dues.db", "SQLite database path")
	cronSpec := flag.String("cron", "0 7 * * *", "daily tick cron spec")
	noTick := flag.Bool("no-tick", false, "disable the daily scheduler")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	// External collaborators
	email := dispatch.NewPostmarkClient(os.Getenv("POSTMARK_TOKEN"), os.Getenv("FROM_EMAIL"))
	if !email.Configured() {
		log.Warn().Msg("POSTMARK_TOKEN not set; reminder emails will fail until configured")
	}
	platform := dispatch.NewPlatformClient(os.Getenv("PLATFORM_URL"), os.Getenv("PLATFORM_TOKEN"))

	clock := dues.SystemClock{}
	dispatcher := dispatch.New(email, platform, log)
	engine := dues.NewEngine(store, dispatcher, clock, log)
	reinstater := dues.NewReinstater(store, platform, clock, log)

	// Daily tick
	scheduler := api.NewDailyScheduler(engine, log)
	scheduler.Spec = *cronSpec
	scheduler.Enabled = !*noTick
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer scheduler.Stop()

	// HTTP API. No payment ledger client is wired here yet; the sync
	// endpoint reports 503 until one is configured.
	handler := api.NewHandler(store, engine, reinstater, nil, clock, log)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", *port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server stopped")
}
