package main

import (
	"encoding/json"
	"fmt"

	"github.com/ruteri/pdo-contract-client/contract"
	"github.com/ruteri/pdo-contract-client/interfaces"
	"github.com/urfave/cli/v2"
)

var contractCommand = &cli.Command{
	Name:  "contract",
	Usage: "manage local contract records",
	Subcommands: []*cli.Command{
		{
			Name:  "init",
			Usage: "create a contract record provisioned for registered enclaves",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "save-file", Aliases: []string{"f"}, Required: true},
				&cli.StringFlag{Name: "id", Required: true, Usage: "contract id"},
				&cli.StringSliceFlag{Name: "enclave", Aliases: []string{"e"}, Required: true, Usage: "registered enclave name, repeatable"},
				&cli.StringFlag{Name: "preferred", Usage: "registered name of the preferred enclave"},
			},
			Action: initContract,
		},
		{
			Name:  "show",
			Usage: "print a contract record",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "save-file", Aliases: []string{"f"}, Required: true},
			},
			Action: func(cCtx *cli.Context) error {
				env, err := loadEnv(cCtx)
				if err != nil {
					return err
				}
				c, err := contract.NewFileStore(env.cfg.Contract.DataDirectory).Load(cCtx.String("save-file"))
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(c, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			},
		},
	},
}

func initContract(cCtx *cli.Context) error {
	env, err := loadEnv(cCtx)
	if err != nil {
		return err
	}
	reg, err := env.openRegistry()
	if err != nil {
		return err
	}
	defer reg.Close()

	c := &interfaces.Contract{
		ID:        cCtx.String("id"),
		CreatorID: env.cfg.Client.Identity,
		ExtraData: map[string]string{},
	}
	for _, name := range cCtx.StringSlice("enclave") {
		record, err := reg.GetByName(name)
		if err != nil {
			return fmt.Errorf("enclave %s: %w", name, err)
		}
		c.ProvisionedEnclaves = append(c.ProvisionedEnclaves, record.EnclaveID)
	}
	if preferred := cCtx.String("preferred"); preferred != "" {
		record, err := reg.GetByName(preferred)
		if err != nil {
			return fmt.Errorf("enclave %s: %w", preferred, err)
		}
		if !c.IsProvisioned(record.EnclaveID) {
			return fmt.Errorf("preferred enclave %s is not among the provisioned enclaves", preferred)
		}
		c.ExtraData[interfaces.PreferredEnclaveKey] = string(record.EnclaveID)
	}

	store := contract.NewFileStore(env.cfg.Contract.DataDirectory)
	handle := cCtx.String("save-file")
	if err := store.Save(handle, c); err != nil {
		return err
	}
	env.log.Info("Saved contract", "contractID", c.ID, "path", store.Path(handle), "enclaves", len(c.ProvisionedEnclaves))
	return nil
}
