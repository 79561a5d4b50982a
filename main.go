// File: main.go
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arcanebutton/gamemaster/bollywood"
	"github.com/arcanebutton/gamemaster/config"
	"github.com/arcanebutton/gamemaster/election"
	"github.com/arcanebutton/gamemaster/transport"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.ExitOnError("gamemaster")

	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	log.Info().
		Str("url", cfg.URL).
		Int("priority", cfg.Priority).
		Strs("peers", cfg.GamemasterURLs).
		Msg("coordinator starting")

	engine := bollywood.NewEngine()

	electionActor := election.New(cfg, log)
	electionPID := engine.Spawn(bollywood.NewProps(electionActor.Producer()))
	if electionPID == nil {
		log.Fatal().Msg("failed to spawn election actor")
	}

	srv := transport.NewServer(cfg, log, engine, electionPID, electionActor, electionActor.Status())
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start transport")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	srv.Stop()
	engine.Shutdown(5 * time.Second)
}
