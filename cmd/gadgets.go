package cmd

import (
	"github.com/spf13/cobra"

	"gadgethost/internal/cli"
	"gadgethost/internal/gadget"
	pkgstrings "gadgethost/pkg/strings"
)

type gadgetServiceView struct {
	AppURL   string `json:"appUrl" yaml:"appUrl"`
	Title    string `json:"title,omitempty" yaml:"title,omitempty"`
	Protocol string `json:"protocol" yaml:"protocol"`
	Service  string `json:"service" yaml:"service"`
	Endpoint string `json:"authorizationUrl" yaml:"authorizationUrl"`
}

func newGadgetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gadgets",
		Short: "Inspect the gadget specs loaded from gadgets.directory",
	}
	cmd.AddCommand(newGadgetsListCmd())
	return cmd
}

func newGadgetsListCmd() *cobra.Command {
	var output string
	var noHeaders bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the OAuth services each local gadget declares",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			registry := gadget.NewRegistry(nil)
			if _, err := registry.LoadDirectory(cfg.Gadgets.Directory, cfg.Gadgets.BaseURL); err != nil {
				return err
			}
			return cli.Render(cmd.OutOrStdout(), format, gadgetListing(registry.Specs()), noHeaders)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, plain, json, yaml)")
	cmd.Flags().BoolVar(&noHeaders, "no-headers", false, "Suppress header row in table output")
	return cmd
}

func gadgetListing(specs []*gadget.Spec) cli.Listing {
	var views []gadgetServiceView
	for _, s := range specs {
		for _, svc := range s.Services {
			views = append(views, gadgetServiceView{s.AppURL, s.Title, "oauth", svc.Name, svc.Authorization.URL})
		}
		for _, svc := range s.Services2 {
			views = append(views, gadgetServiceView{s.AppURL, s.Title, "oauth2", svc.Name, svc.Authorization.URL})
		}
	}

	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{v.AppURL, pkgstrings.Truncate(v.Title, pkgstrings.CellMaxLen), v.Protocol, v.Service, v.Endpoint})
	}
	if views == nil {
		views = []gadgetServiceView{}
	}
	return cli.Listing{
		Headers: []string{"App URL", "Title", "Protocol", "Service", "Authorization URL"},
		Rows:    rows,
		Data:    views,
		Empty:   "No gadget declares an OAuth service",
	}
}

func init() {
	rootCmd.AddCommand(newGadgetsCmd())
}
