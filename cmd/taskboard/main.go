package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"taskboard/internal/board"
	"taskboard/internal/notify"
	"taskboard/internal/server"
	"taskboard/internal/storage/sqlite"
	"taskboard/internal/util"
)

func main() {
	_ = godotenv.Load()

	addrFlag := flag.String("addr", util.EnvOrDefault("BOARD_ADDR", ":8080"), "HTTP listen address")
	dbFlag := flag.String("db", util.EnvOrDefault("BOARD_DB_PATH", "data/taskboard.db"), "Path to sqlite database file")
	doneFlag := flag.String("done-column", util.EnvOrDefault("BOARD_DONE_COLUMN", board.DefaultDoneColumn), "Column name treated as terminal by the rollover sweep")
	sweepFlag := flag.Duration("sweep-every", util.EnvDuration("BOARD_SWEEP_EVERY", time.Minute), "Interval between rollover sweeps")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	store, err := sqlite.Open(*dbFlag, logger)
	if err != nil {
		logger.Error("unable to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	dispatcher := notify.New(store, logger)
	engine := board.NewEngine(store, dispatcher, logger, board.WithDoneColumn(*doneFlag))
	sweeper := board.NewSweeper(engine, store, logger, *sweepFlag)

	srv := server.New(store, engine, dispatcher, logger)

	httpServer := &http.Server{
		Addr:    *addrFlag,
		Handler: srv.Engine(),
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go sweeper.Run(sweepCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}
