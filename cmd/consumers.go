package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"gadgethost/internal/cli"
	"gadgethost/internal/config"
	"gadgethost/internal/consumer"
	"gadgethost/internal/oauth"
)

// consumerView is a registration without its secrets.
type consumerView struct {
	AppURL          string `json:"appUrl" yaml:"appUrl"`
	Service         string `json:"service" yaml:"service"`
	Protocol        string `json:"protocol" yaml:"protocol"`
	Key             string `json:"key" yaml:"key"`
	SignatureMethod string `json:"signatureMethod,omitempty" yaml:"signatureMethod,omitempty"`
	CallbackURL     string `json:"callbackUrl,omitempty" yaml:"callbackUrl,omitempty"`
}

func viewOf(r consumer.Registration) consumerView {
	v := consumerView{
		AppURL:   r.AppURL,
		Service:  r.Service,
		Protocol: oauth.ParseProtocol(r.Protocol).String(),
		Key:      r.ConsumerKey,
	}
	switch oauth.ParseProtocol(r.Protocol) {
	case oauth.ProtocolOAuth2:
		v.Key = r.ClientID
		v.CallbackURL = r.RedirectURI
	default:
		v.SignatureMethod = r.SignatureMethod
		v.CallbackURL = r.CallbackURL
	}
	return v
}

func newConsumersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "consumers",
		Aliases: []string{"consumer"},
		Short:   "Manage the consumer keys registered for gadget services",
		Long: `Consumers are the keys and secrets (OAuth 1.0a) or client ids and secrets
(OAuth 2.0) the container holds for each gadget service. Registrations live in
the store selected by consumers.backend. The file backend is read-only here;
edit its YAML file directly.`,
	}
	cmd.AddCommand(newConsumersListCmd(), newConsumersAddCmd(), newConsumersDeleteCmd())
	return cmd
}

func newConsumersListCmd() *cobra.Command {
	var output string
	var noHeaders bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List consumer registrations (secrets are never shown)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			store, err := openConsumerStore()
			if err != nil {
				return err
			}
			defer store.Close()

			regs, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			return cli.Render(cmd.OutOrStdout(), format, consumerListing(regs, format), noHeaders)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, plain, json, yaml)")
	cmd.Flags().BoolVar(&noHeaders, "no-headers", false, "Suppress header row in table output")
	return cmd
}

func consumerListing(regs []consumer.Registration, format cli.OutputFormat) cli.Listing {
	protocolColor := color.New(color.FgCyan).SprintFunc()
	if format == cli.OutputFormatPlain {
		protocolColor = fmt.Sprint
	}

	views := make([]consumerView, 0, len(regs))
	rows := make([][]string, 0, len(regs))
	for _, r := range regs {
		v := viewOf(r)
		views = append(views, v)
		rows = append(rows, []string{v.AppURL, v.Service, protocolColor(v.Protocol), v.Key})
	}
	return cli.Listing{
		Headers: []string{"App URL", "Service", "Protocol", "Key"},
		Rows:    rows,
		Data:    views,
		Empty:   "No consumers registered",
	}
}

func newConsumersAddCmd() *cobra.Command {
	var r consumer.Registration

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register or replace a consumer (sqlite backend)",
		Example: `  gadgethost consumers add --app-url '*' --service twitter --protocol oauth \
      --consumer-key ck --consumer-secret cs
  gadgethost consumers add --app-url http://apps.test/cal.xml --service google \
      --protocol oauth2 --client-id id --client-secret secret`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.Validate(); err != nil {
				return &cli.UsageError{Message: err.Error()}
			}
			return withConsumerWriter(cmd.Context(), func(ctx context.Context, w consumer.Writer) error {
				if err := w.Put(ctx, r); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s/%s (%s)\n",
					color.New(color.FgGreen).Sprint("Registered"), r.AppURL, r.Service, r.Protocol)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&r.AppURL, "app-url", "", "Gadget app URL, or '*' for every gadget declaring the service")
	f.StringVar(&r.Service, "service", "", "Service name from the gadget spec")
	f.StringVar(&r.Protocol, "protocol", "oauth", "oauth or oauth2")
	f.StringVar(&r.ConsumerKey, "consumer-key", "", "OAuth 1.0a consumer key")
	f.StringVar(&r.ConsumerSecret, "consumer-secret", "", "OAuth 1.0a consumer secret")
	f.StringVar(&r.SignatureMethod, "signature-method", "", "OAuth 1.0a signature method (default HMAC-SHA1)")
	f.StringVar(&r.CallbackURL, "callback-url", "", "OAuth 1.0a callback override")
	f.StringVar(&r.ClientID, "client-id", "", "OAuth 2.0 client id")
	f.StringVar(&r.ClientSecret, "client-secret", "", "OAuth 2.0 client secret")
	f.StringVar(&r.RedirectURI, "redirect-uri", "", "OAuth 2.0 redirect URI override")
	return cmd
}

func newConsumersDeleteCmd() *cobra.Command {
	var protocol string

	cmd := &cobra.Command{
		Use:   "delete APP_URL SERVICE",
		Short: "Remove a consumer registration (sqlite backend)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := oauth.ParseProtocol(protocol)
			if p == oauth.ProtocolNone {
				return &cli.UsageError{Message: fmt.Sprintf("unknown protocol %q", protocol)}
			}
			return withConsumerWriter(cmd.Context(), func(ctx context.Context, w consumer.Writer) error {
				if err := w.Delete(ctx, args[0], args[1], p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s/%s (%s)\n", args[0], args[1], p)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&protocol, "protocol", "oauth", "oauth or oauth2")
	return cmd
}

func openConsumerStore() (consumer.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	// The CLI reads a snapshot; no file watching.
	cfg.Consumers.Watch = false
	return consumer.Open(cfg.Consumers)
}

func withConsumerWriter(ctx context.Context, fn func(context.Context, consumer.Writer) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := openConsumerStore()
	if err != nil {
		return err
	}
	defer store.Close()

	w, ok := store.(consumer.Writer)
	if !ok {
		return &cli.UsageError{Message: fmt.Sprintf("consumers backend is read-only; set consumers.backend to %q or edit the file directly", config.ConsumerBackendSQLite)}
	}
	return fn(ctx, w)
}

func init() {
	rootCmd.AddCommand(newConsumersCmd())
}
