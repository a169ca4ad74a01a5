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

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/cspline/activationsrv/internal/common/logtrace"
	"github.com/cspline/activationsrv/internal/licensesrv/config"
	"github.com/cspline/activationsrv/internal/licensesrv/db"
	"github.com/cspline/activationsrv/internal/licensesrv/license"
	"github.com/cspline/activationsrv/internal/licensesrv/server"
)

func main() {
	configFile := flag.String("config", "activationsrv.conf", "path to the configuration file")
	flag.Parse()

	// Local development convenience; absent .env is not an error.
	_ = godotenv.Load()

	logtrace.InitLogger()

	if err := config.LoadConfig(*configFile); err != nil {
		log.Fatal().Err(err).Msg("unable to load config")
	}
	cfg := config.Config()

	db.Init()

	signer, err := license.NewSigner(license.SignerOptions{
		PrivateKeyPEM:  []byte(os.Getenv("RSA_PRIVATE_KEY")),
		PrivateKeyFile: cfg.Signing.PrivateKeyFile,
		DevMode:        cfg.Signing.DevMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("unable to initialize license signer")
	}
	if signer.DevMode() {
		log.Warn().Msg("running with a development signing key")
	}

	s := server.CreateNewServer(signer)

	addr := fmt.Sprintf("%s:%s", cfg.ServerHostName, cfg.ServerPort)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("address", addr).Bool("tls", cfg.SupportTLS).Msg("starting activation server")
		if cfg.SupportTLS {
			serverErrors <- httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			serverErrors <- httpServer.ListenAndServe()
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Fatal().Err(err).Msg("server error")
	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed, closing")
			httpServer.Close()
		}
	}
}
