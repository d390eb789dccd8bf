package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/pdo-contract-client/cmd/flags"
	"github.com/ruteri/pdo-contract-client/cryptoutils"
	"github.com/ruteri/pdo-contract-client/httpserver"
	"github.com/urfave/cli/v2"
)

var flagListenAddr = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:7101",
	Usage: "address to listen on for the enclave API",
}

var flagKeyFile = &cli.StringFlag{
	Name:  "enclave-key-file",
	Usage: "enclave signing key; a fresh key is generated if unset",
}

var flagKeyPassphrase = &cli.StringFlag{
	Name:    "enclave-key-passphrase",
	EnvVars: []string{"ENCLAVE_KEY_PASSPHRASE"},
	Usage:   "passphrase of a sealed enclave key file",
}

func main() {
	app := &cli.App{
		Name:  "enclave-sim",
		Usage: "Serve a key/value contract enclave for local development",
		Flags: append([]cli.Flag{
			flagListenAddr,
			flagKeyFile,
			flagKeyPassphrase,
			flags.AttestationTypeFlag,
			flags.LogServiceFlagFn("enclave-sim"),
		}, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			keys, err := loadEnclaveKeys(cCtx)
			if err != nil {
				logger.Error("Failed to load enclave keys", "err", err)
				return err
			}

			attestationType, err := flags.AttestationType(cCtx)
			if err != nil {
				return err
			}
			var attestation cryptoutils.AttestationProvider
			if attestationType != cryptoutils.NoAttestation {
				attestation, err = cryptoutils.AttestationProviderFor(attestationType)
				if err != nil {
					return err
				}
			}

			handler, err := httpserver.NewHandler(keys, attestation, logger)
			if err != nil {
				logger.Error("Failed to create handler", "err", err)
				return err
			}

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flagListenAddr.Name))
			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting enclave simulator", "enclaveID", handler.EnclaveID(), "listenAddr", cfg.ListenAddr, "attestation", attestationType)
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadEnclaveKeys(cCtx *cli.Context) (*cryptoutils.ClientKeys, error) {
	path := cCtx.String(flagKeyFile.Name)
	if path == "" {
		return cryptoutils.GenerateClientKeys()
	}

	keys, err := cryptoutils.ReadClientKeys(path, cCtx.String(flagKeyPassphrase.Name))
	if errors.Is(err, os.ErrNotExist) {
		if keys, err = cryptoutils.GenerateClientKeys(); err != nil {
			return nil, err
		}
		return keys, cryptoutils.WriteClientKeys(path, keys, cCtx.String(flagKeyPassphrase.Name))
	}
	return keys, err
}
