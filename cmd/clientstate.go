package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"gadgethost/internal/cli"
	"gadgethost/internal/clientstate"
)

func newClientStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clientstate",
		Short: "Encode or decode security tokens (the st parameter)",
		Long: `Security tokens identify the owner, viewer and gadget behind a proxied
request. They are protected with the secret and format configured under
clientState. These commands are meant for debugging a container and for
minting tokens in tests.`,
	}
	cmd.AddCommand(newClientStateEncodeCmd(), newClientStateDecodeCmd())
	return cmd
}

func clientStateCodec(ctx context.Context) (clientstate.Codec, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	secret, err := clientstate.ResolveSecret(ctx, cfg.ClientState, nil)
	if err != nil {
		return nil, err
	}
	return clientstate.NewCodec(cfg.ClientState, secret)
}

func newClientStateEncodeCmd() *cobra.Command {
	var s clientstate.State

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Print a security token for the given fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.Owner == "" || (s.App == "" && s.URL == "") {
				return &cli.UsageError{Message: "--owner and one of --app or --url are required"}
			}
			codec, err := clientStateCodec(cmd.Context())
			if err != nil {
				return err
			}
			st, err := codec.Wrap(s)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), st)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&s.Owner, "owner", "", "Owner id")
	f.StringVar(&s.Viewer, "viewer", "", "Viewer id")
	f.StringVar(&s.App, "app", "", "Application id")
	f.StringVar(&s.URL, "url", "", "Gadget app URL")
	f.StringVar(&s.Domain, "domain", "", "Container domain")
	f.StringVar(&s.Module, "module", "", "Module id")
	f.StringVar(&s.Container, "container", "default", "Container name")
	return cmd
}

func newClientStateDecodeCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "decode TOKEN",
		Short: "Verify a security token and print its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			codec, err := clientStateCodec(cmd.Context())
			if err != nil {
				return err
			}
			s, err := codec.Unwrap(args[0])
			if err != nil {
				return err
			}

			fields := []struct{ name, value string }{
				{"owner", s.Owner}, {"viewer", s.Viewer}, {"app", s.App}, {"url", s.URL},
				{"domain", s.Domain}, {"module", s.Module}, {"container", s.Container},
			}
			data := make(map[string]string, len(fields))
			rows := make([][]string, 0, len(fields))
			for _, f := range fields {
				data[f.name] = f.value
				rows = append(rows, []string{f.name, f.value})
			}
			return cli.Render(cmd.OutOrStdout(), format, cli.Listing{
				Headers: []string{"Field", "Value"},
				Rows:    rows,
				Data:    data,
			}, false)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, plain, json, yaml)")
	return cmd
}

func init() {
	rootCmd.AddCommand(newClientStateCmd())
}
