// Command authorctl drives the course authoring agent from a terminal.
package main

import (
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agusgarcia3007/learnbase/backend/pkg/conversation"
)

var (
	serverURL  string
	token      string
	tenantID   string
	tenantSlug string
	plain      bool
)

var rootCmd = &cobra.Command{
	Use:   "authorctl",
	Short: "Course authoring agent client",
	Long: `authorctl sends authoring turns to the API server, renders the streamed
reply and tool activity, confirms course previews and replays captured
event streams.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if plain {
			color.NoColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("AUTHORCTL_SERVER", "http://localhost:8080"), "API server base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("AUTHORCTL_TOKEN"), "Bearer token")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", os.Getenv("AUTHORCTL_TENANT"), "Tenant id sent with every request")
	rootCmd.PersistentFlags().StringVar(&tenantSlug, "tenant-slug", "", "Tenant slug shown to the agent")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "Disable colored output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newClient() *conversation.Client {
	return conversation.NewClient(serverURL,
		conversation.WithToken(token),
		conversation.WithTenant(tenantID, tenantSlug),
	)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
