package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ruteri/pdo-contract-client/common"
	"github.com/ruteri/pdo-contract-client/interfaces"
	"github.com/urfave/cli/v2"
)

var eserviceCommand = &cli.Command{
	Name:  "eservice",
	Usage: "manage the enclave service database",
	Subcommands: []*cli.Command{
		{
			Name:  "add",
			Usage: "connect to an enclave service and record it under a name",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "url", Required: true, Usage: "enclave service URL"},
				&cli.StringFlag{Name: "name", Required: true, Usage: "name to register the enclave under"},
			},
			Action: addEnclaveService,
		},
		{
			Name:  "remove",
			Usage: "remove a registered enclave service",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "name", Required: true},
			},
			Action: func(cCtx *cli.Context) error {
				env, err := loadEnv(cCtx)
				if err != nil {
					return err
				}
				reg, err := env.openRegistry()
				if err != nil {
					return err
				}
				defer reg.Close()

				return reg.Remove(cCtx.String("name"))
			},
		},
		{
			Name:  "list",
			Usage: "list registered enclave services",
			Action: func(cCtx *cli.Context) error {
				env, err := loadEnv(cCtx)
				if err != nil {
					return err
				}
				reg, err := env.openRegistry()
				if err != nil {
					return err
				}
				defer reg.Close()

				records, err := reg.List()
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tENCLAVE\tURL")
				for _, r := range records {
					fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.EnclaveID, r.URL)
				}
				return w.Flush()
			},
		},
	},
}

func addEnclaveService(cCtx *cli.Context) error {
	env, err := loadEnv(cCtx)
	if err != nil {
		return err
	}
	serviceURL, name := cCtx.String("url"), cCtx.String("name")
	if !common.ValidServiceURL(serviceURL) {
		return fmt.Errorf("invalid service url %q", serviceURL)
	}

	reg, err := env.openRegistry()
	if err != nil {
		return err
	}
	defer reg.Close()

	ctx := context.Background()
	existing, err := reg.List()
	if err != nil {
		return err
	}
	resolver := common.NewDNSResolver()
	for _, r := range existing {
		if r.Name != name && common.SameServiceURL(ctx, resolver, r.URL, serviceURL) {
			return fmt.Errorf("%s is already registered as %s", serviceURL, r.Name)
		}
	}

	connector, err := env.connector(cCtx)
	if err != nil {
		return err
	}
	svc, err := connector.Connect(ctx, serviceURL)
	if err != nil {
		return err
	}

	record := interfaces.EnclaveRecord{EnclaveID: svc.EnclaveID(), URL: svc.URL(), Name: name}
	if err := reg.Add(record); err != nil {
		return err
	}
	env.log.Info("Registered enclave service", "name", name, "enclaveID", record.EnclaveID, "url", record.URL)
	return nil
}
