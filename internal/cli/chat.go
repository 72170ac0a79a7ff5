package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newChatCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask the assistant a question",
		Long:  "Send one message to the assistant and print the reply as it is revealed.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := c.Chat(cmd.Context(), strings.Join(args, " "), out); err != nil {
				return err
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}
