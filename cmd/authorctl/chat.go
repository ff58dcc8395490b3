package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agusgarcia3007/learnbase/backend/pkg/conversation"
	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
)

var (
	chatConversationID string
	chatConfirm        bool
	chatAttachments    []string
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a turn, or start an interactive session without a message",
	Long: `chat sends one authoring turn when a message is given. Without a message
it reads turns from stdin; the commands /confirm, /yes <message>, /reset and
/quit are available there.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		attachments, err := parseAttachments(chatAttachments)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		r := newRenderer(out)
		sess := conversation.NewSession(conversation.WithOnChange(r.onChange))
		defer sess.Close()
		if chatConversationID != "" {
			sess.SetConversationID(chatConversationID)
		}
		client := newClient()

		if len(args) > 0 {
			msg := strings.Join(args, " ")
			if chatConfirm {
				err = client.SendConfirmed(ctx, sess, msg)
			} else {
				err = client.Send(ctx, sess, msg, attachments...)
			}
			printConversationID(out, sess)
			return err
		}

		return interactive(ctx, cmd.InOrStdin(), out, client, sess, attachments)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatConversationID, "conversation", "", "Continue an existing conversation")
	chatCmd.Flags().BoolVar(&chatConfirm, "confirm", false, "Confirm the latest course preview with this turn")
	chatCmd.Flags().StringArrayVar(&chatAttachments, "attach", nil, "Attachment as name=url (repeatable)")
}

func interactive(ctx context.Context, in io.Reader, out io.Writer, client *conversation.Client, sess *conversation.Session, attachments []protocol.Attachment) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	prompt := func() { fmt.Fprint(out, color.GreenString("you> ")) }
	prompt()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		var err error
		switch {
		case line == "":
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/reset":
			sess.Reset()
			fmt.Fprintln(out, color.HiBlackString("started a new conversation"))
		case line == "/confirm":
			if err = client.Confirm(ctx, sess); err == nil {
				fmt.Fprintln(out, color.GreenString("preview confirmed"))
			}
		case strings.HasPrefix(line, "/yes"):
			msg := strings.TrimSpace(strings.TrimPrefix(line, "/yes"))
			if msg == "" {
				msg = "Yes, create the course."
			}
			err = client.SendConfirmed(ctx, sess, msg)
		default:
			err = client.Send(ctx, sess, line, attachments...)
			// attachments go with the first turn only
			attachments = nil
		}
		// failed turns are already rendered from the session state
		if err != nil && sess.Snapshot().Status != conversation.StatusError {
			fmt.Fprintln(out, color.RedString("error: %v", err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		prompt()
	}
	fmt.Fprintln(out)
	printConversationID(out, sess)
	return scanner.Err()
}

func printConversationID(out io.Writer, sess *conversation.Session) {
	if id := sess.ConversationID(); id != "" {
		fmt.Fprintln(out, color.HiBlackString("conversation: %s", id))
	}
}

func parseAttachments(flags []string) ([]protocol.Attachment, error) {
	out := make([]protocol.Attachment, 0, len(flags))
	for _, raw := range flags {
		name, url, ok := strings.Cut(raw, "=")
		name, url = strings.TrimSpace(name), strings.TrimSpace(url)
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("invalid attachment %q, want name=url", raw)
		}
		out = append(out, protocol.Attachment{
			Name:      name,
			URL:       url,
			MediaType: mime.TypeByExtension(filepath.Ext(name)),
		})
	}
	return out, nil
}
