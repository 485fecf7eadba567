package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deemkeen/agora/activitypub"
	"github.com/deemkeen/agora/db"
	"github.com/deemkeen/agora/util"
	"github.com/deemkeen/agora/web"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read configuration")
	}
	log.Info().
		Str("domain", conf.Conf.Domain).
		Bool("federation", conf.Conf.Federation.Enabled).
		Msg(util.GetNameAndVersion())

	database, err := db.Open(conf.Conf.DbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer database.Close()

	log.Info().Msg("running database migrations")
	if err := database.RunMigrations(); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	ctx := activitypub.NewContext(database, conf, activitypub.LogNotifier{})

	quit := make(chan struct{})
	if conf.Conf.Federation.Enabled {
		activitypub.StartDeliveryWorker(ctx, quit)
	}

	router := web.NewRouter(ctx, database, conf)
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", conf.Conf.Host, conf.Conf.HttpPort),
		Handler: router,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting http server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-done
	log.Info().Msg("shutting down")
	close(quit)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
