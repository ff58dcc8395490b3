package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agusgarcia3007/learnbase/backend/pkg/conversation"
)

var confirmCmd = &cobra.Command{
	Use:   "confirm <conversation-id>",
	Short: "Confirm the latest course preview of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess := conversation.NewSession()
		defer sess.Close()
		sess.SetConversationID(args[0])

		if err := newClient().Confirm(cmd.Context(), sess); err != nil {
			return fmt.Errorf("confirm %s: %w", args[0], err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("preview confirmed for %s", args[0]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(confirmCmd)
}
