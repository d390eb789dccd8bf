package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ruteri/pdo-contract-client/cryptoutils"
	"github.com/urfave/cli/v2"
)

var keysCommand = &cli.Command{
	Name:  "keys",
	Usage: "manage client signing keys",
	Subcommands: []*cli.Command{
		{
			Name:  "generate",
			Usage: "generate a client key file",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "key file, defaults to the configured key file in the first search directory"},
				&cli.StringFlag{Name: "passphrase", EnvVars: []string{"PDO_KEY_PASSPHRASE"}, Usage: "seal the key under a passphrase"},
				&cli.BoolFlag{Name: "force", Usage: "overwrite an existing key file"},
			},
			Action: func(cCtx *cli.Context) error {
				env, err := loadEnv(cCtx)
				if err != nil {
					return err
				}

				path := cCtx.String("output")
				if path == "" {
					dir := "."
					if len(env.cfg.Key.SearchPath) > 0 {
						dir = env.cfg.Key.SearchPath[0]
					}
					path = filepath.Join(dir, env.cfg.KeyFileName())
				}
				if _, err := os.Stat(path); err == nil && !cCtx.Bool("force") {
					return fmt.Errorf("%s already exists", path)
				}
				if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
					return err
				}

				keys, err := cryptoutils.GenerateClientKeys()
				if err != nil {
					return err
				}
				if err := cryptoutils.WriteClientKeys(path, keys, cCtx.String("passphrase")); err != nil {
					return err
				}

				env.log.Info("Generated client keys", "path", path)
				fmt.Println(keys.Identity())
				return nil
			},
		},
	},
}
