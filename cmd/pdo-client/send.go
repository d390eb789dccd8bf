package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteri/pdo-contract-client/cmd/flags"
	"github.com/ruteri/pdo-contract-client/commit"
	"github.com/ruteri/pdo-contract-client/common"
	"github.com/ruteri/pdo-contract-client/contract"
	"github.com/ruteri/pdo-contract-client/interfaces"
	"github.com/ruteri/pdo-contract-client/ledger"
	"github.com/ruteri/pdo-contract-client/metrics"
	"github.com/ruteri/pdo-contract-client/storage"
	"github.com/ruteri/pdo-contract-client/update"
	"github.com/urfave/cli/v2"
)

var sendCommand = &cli.Command{
	Name:      "send",
	Usage:     "send an invocation to a contract",
	ArgsUsage: "<method> [positional parameters...]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "save-file",
			Aliases:  []string{"f"},
			Required: true,
			Usage:    "contract handle: a name under the data directory or a path",
		},
		&cli.StringFlag{
			Name:    "enclave",
			Aliases: []string{"e"},
			Value:   update.DirectivePreferred,
			Usage:   "enclave URL, 'preferred', 'random' or a registered name",
		},
		&cli.StringFlag{
			Name:    "positional",
			Aliases: []string{"p"},
			Usage:   "positional parameters as a JSON list",
		},
		&cli.StringSliceFlag{
			Name:    "kwarg",
			Aliases: []string{"k"},
			Usage:   "keyword parameter as key=value, repeatable",
		},
		&cli.BoolFlag{
			Name:  "wait",
			Usage: "wait until the new state is visible on the ledger",
		},
		&cli.BoolFlag{
			Name:  "no-commit",
			Usage: "evaluate only, never commit a state change",
		},
		&cli.StringFlag{
			Name:    "symbol",
			Aliases: []string{"s"},
			Usage:   "print the result as symbol=result",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "give up after this long, 0 for no limit",
		},
		&cli.StringFlag{
			Name:  flags.MetricsAddrFlag.Name,
			Usage: "serve Prometheus metrics on this address while the command runs",
		},
	},
	Action: runSend,
}

func runSend(cCtx *cli.Context) error {
	env, err := loadEnv(cCtx)
	if err != nil {
		return err
	}
	log := env.log

	invocation, err := buildInvocation(cCtx.Args().First(), cCtx.Args().Tail(), cCtx.String("positional"), cCtx.StringSlice("kwarg"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout := cCtx.Duration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	reg, err := env.openRegistry()
	if err != nil {
		return err
	}
	defer reg.Close()

	connector, err := env.connector(cCtx)
	if err != nil {
		return err
	}

	ledgerClient, err := ledger.New(ctx, env.cfg.Ledger, log)
	if err != nil {
		return err
	}
	observer, err := ledger.NewObserver(ledgerClient, env.cfg.Ledger, log)
	if err != nil {
		return err
	}

	collector, stopMetrics, err := startMetrics(cCtx.String(flags.MetricsAddrFlag.Name), log)
	if err != nil {
		return err
	}
	defer stopMetrics()

	replicator := commit.NewReplicator(ledgerClient, storage.NewStorageBackendFactory(log), commit.DefaultWorkers, log)
	replicator.BindLedger(env.cfg.Ledger)
	replicator.SetMetrics(collector)
	defer replicator.Close()

	sender := update.NewSender(
		update.NewSelector(connector, reg, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), log),
		update.NewCoordinator(&contract.FileKeyStore{Passphrase: env.cfg.Key.Passphrase}, env.cfg.Key.SearchPath, log),
		update.NewCommitDriver(replicator, observer, log),
		log,
	)
	sender.SetMetrics(collector)

	result, err := sender.SendToContract(ctx, contract.NewFileStore(env.cfg.Contract.DataDirectory), cCtx.String("save-file"), invocation, update.Options{
		Enclave: cCtx.String("enclave"),
		KeyPath: env.cfg.KeyFileName(),
		Commit:  !cCtx.Bool("no-commit"),
		Wait:    cCtx.Bool("wait"),
		Ledger:  env.cfg.Ledger,
	})

	var rejected *interfaces.RejectedInvocationError
	if errors.As(err, &rejected) {
		return cli.Exit(fmt.Sprintf("method invocation failed: %s", rejected.Explanation), 1)
	}
	if err != nil {
		return err
	}

	if result.StateChanged && result.Committed == nil {
		log.Warn("State change was not committed", "enclaveID", result.EnclaveID)
	}
	if result.TransactionID != "" {
		log.Info("Committed state update", "tx", result.TransactionID, "enclaveID", result.EnclaveID)
	}

	if symbol := cCtx.String("symbol"); symbol != "" {
		fmt.Printf("%s=%s\n", symbol, result.Response)
	} else {
		fmt.Println(result.Response)
	}
	return nil
}

// startMetrics serves a collector on addr until the returned stop function
// is called. An empty addr disables metrics and returns a nil collector.
func startMetrics(addr string, log *slog.Logger) (*metrics.Collector, func(), error) {
	if addr == "" {
		return nil, func() {}, nil
	}
	srv, err := metrics.New(common.PackageName, addr)
	if err != nil {
		return nil, nil, err
	}
	go func() {
		log.Info("Starting metrics server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", "err", err)
		}
	}()
	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("Metrics server shutdown failed", "err", err)
		}
	}
	return srv.Collector(), stop, nil
}
