package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/pdo-contract-client/api"
	"github.com/ruteri/pdo-contract-client/common"
	"github.com/ruteri/pdo-contract-client/cryptoutils"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.HTTPServerConfig {
	metricsAddr := cCtx.String("metrics-addr")
	enablePprof := cCtx.Bool("pprof")
	drainDuration := time.Duration(cCtx.Int64("drain-seconds")) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// AttestationType returns the --attestation-type flag, parsed.
func AttestationType(cCtx *cli.Context) (cryptoutils.AttestationType, error) {
	return cryptoutils.AttestationTypeFromString(cCtx.String(AttestationTypeFlag.Name))
}

var ConfigFlag = &cli.StringSliceFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Value:   cli.NewStringSlice("pcontract.toml"),
	Usage:   "configuration files, merged in order",
}

var ConfigDirFlag = &cli.StringSliceFlag{
	Name:  "config-dir",
	Value: cli.NewStringSlice(".", "./etc"),
	Usage: "directories searched for configuration files",
}

var IdentityFlag = &cli.StringFlag{
	Name:    "identity",
	Aliases: []string{"i"},
	Usage:   "client identity, selects <identity>_private.pem unless a key file is configured",
}

var KeyFileFlag = &cli.StringFlag{
	Name:  "key-file",
	Usage: "client key file, overrides the configured one",
}

var DataDirFlag = &cli.StringFlag{
	Name:  "data-dir",
	Usage: "contract data directory, overrides the configured one",
}

var AttestationTypeFlag = &cli.StringFlag{
	Name:  "attestation-type",
	Value: "",
	Usage: "attestation type: 'qemu-tdx', 'dummy' or empty for none",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
