// Package cli implements clipctl, the command-line client for the
// clipforge API.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lalithlochan/clipforge/internal/client"
)

const defaultBaseURL = "http://localhost:8080"

type options struct {
	baseURL string
	token   string
	output  string
	poll    time.Duration
}

// NewRootCommand builds a fresh clipctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "clipctl",
		Short: "Command-line client for the clipforge API",
		Long: `clipctl creates generation jobs, follows them to completion and talks
to the assistant.

Connection settings come from flags or CLIPFORGE_URL and CLIPFORGE_TOKEN.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != "text" && opts.output != "json" {
				return fmt.Errorf("unsupported output %q (text, json)", opts.output)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", envOr("CLIPFORGE_URL", defaultBaseURL), "gateway base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("CLIPFORGE_TOKEN"), "bearer token")
	root.PersistentFlags().DurationVar(&opts.poll, "poll-interval", time.Second, "initial interval between status polls")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format (text, json)")

	root.AddCommand(
		newTokenCommand(),
		newCreateCommand(opts),
		newStatusCommand(opts),
		newWaitCommand(opts),
		newListCommand(opts),
		newChatCommand(opts),
	)
	return root
}

func (o *options) client() (*client.Client, error) {
	if o.token == "" {
		return nil, fmt.Errorf("token is required. Use --token or set CLIPFORGE_TOKEN")
	}
	return client.New(o.baseURL, o.token, client.WithWaitConfig(client.WaitConfig{
		InitialInterval: o.poll,
	})), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
