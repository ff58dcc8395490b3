package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/agusgarcia3007/learnbase/backend/pkg/conversation"
)

var replayJSON bool

var replayCmd = &cobra.Command{
	Use:   "replay <file|->",
	Short: "Decode a captured event stream and show the resulting conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		label := "stdin"
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open capture: %w", err)
			}
			defer f.Close()
			in, label = f, args[0]
		}
		return replay(cmd.Context(), in, label, cmd.OutOrStdout(), replayJSON)
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Print the final state as JSON")
}

func replay(ctx context.Context, in io.Reader, label string, out io.Writer, asJSON bool) error {
	var opts []conversation.Option
	if !asJSON {
		opts = append(opts, conversation.WithOnChange(newRenderer(out).onChange))
	}
	sess := conversation.NewSession(opts...)
	defer sess.Close()

	if err := sess.Begin("replay of "+label, nil); err != nil {
		return err
	}
	consumeErr := sess.Consume(ctx, in)

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sess.Snapshot()); err != nil {
			return err
		}
	}
	return consumeErr
}
