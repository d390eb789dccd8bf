package main

import (
	"log"
	"os"

	"github.com/ruteri/pdo-contract-client/cmd/flags"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "pdo-client",
		Usage: "Invoke confidential contracts and commit their state",
		Flags: append([]cli.Flag{
			flags.ConfigFlag,
			flags.ConfigDirFlag,
			flags.IdentityFlag,
			flags.KeyFileFlag,
			flags.DataDirFlag,
			flags.AttestationTypeFlag,
		}, flags.LogFlags...),
		Commands: []*cli.Command{
			sendCommand,
			eserviceCommand,
			contractCommand,
			keysCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
