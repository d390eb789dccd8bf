package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/pdo-contract-client/cmd/flags"
	"github.com/ruteri/pdo-contract-client/common"
	"github.com/ruteri/pdo-contract-client/config"
	"github.com/ruteri/pdo-contract-client/cryptoutils"
	"github.com/ruteri/pdo-contract-client/enclave"
	"github.com/ruteri/pdo-contract-client/registry"
	"github.com/urfave/cli/v2"
)

// clientEnv is the configuration and logger every command starts from.
type clientEnv struct {
	cfg *config.Config
	log *slog.Logger
}

func loadEnv(cCtx *cli.Context) (*clientEnv, error) {
	identity := cCtx.String(flags.IdentityFlag.Name)
	vars := map[string]any{
		"identity": identity,
		"home":     os.Getenv("HOME"),
		"data":     common.DefaultDataDirectory,
	}

	cfg, err := config.Load(cCtx.StringSlice(flags.ConfigFlag.Name), cCtx.StringSlice(flags.ConfigDirFlag.Name), vars)
	switch {
	case errors.Is(err, common.ErrFileNotFound) && !cCtx.IsSet(flags.ConfigFlag.Name):
		cfg = config.Default()
	case err != nil:
		return nil, err
	}

	if identity != "" {
		cfg.Client.Identity = identity
	}
	if keyFile := cCtx.String(flags.KeyFileFlag.Name); keyFile != "" {
		cfg.Key.FileName = keyFile
	}
	if dataDir := cCtx.String(flags.DataDirFlag.Name); dataDir != "" {
		cfg.Contract.DataDirectory = dataDir
	}

	log := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(flags.LogDebugFlag.Name) || cfg.Logging.Debug,
		JSON:    cCtx.Bool(flags.LogJsonFlag.Name) || cfg.Logging.JSON,
		Service: "pdo-client",
		Version: common.Version,
	})

	return &clientEnv{cfg: cfg, log: log}, nil
}

func (e *clientEnv) openRegistry() (*registry.BoltRegistry, error) {
	path := common.BuildFileName(e.cfg.Service.EnclaveServiceDatabaseFile, e.cfg.Contract.DataDirectory, "", ".bolt")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return registry.OpenBoltRegistry(path)
}

func (e *clientEnv) connector(cCtx *cli.Context) (*enclave.Connector, error) {
	attestation, err := flags.AttestationType(cCtx)
	if err != nil {
		return nil, err
	}
	if attestation == cryptoutils.NoAttestation && e.cfg.Service.RequireAttestation {
		attestation = cryptoutils.DCAPAttestation
	}
	return enclave.NewConnector(enclave.ConnectorOpts{RequireAttestation: attestation, Log: e.log})
}
