package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/solvaholic/wadigest/internal/digest"
	"github.com/solvaholic/wadigest/internal/utils"
)

var (
	digestGroup      string
	digestDays       int
	digestSince      string
	digestSend       bool
	digestPermissive bool
	digestNoStore    bool
	digestPublish    bool
)

// digestCmd represents the digest command
var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Summarize recent group messages",
	Long: `Fetch recent messages of a group, normalize and summarize them.

When the gateway returns nothing, stored messages and then the raw history
cache are used. The summary is stored in the database and, with --send, posted
to the group if sending is enabled in the configuration.`,
	RunE: runDigest,
}

func init() {
	rootCmd.AddCommand(digestCmd)

	digestCmd.Flags().StringVarP(&digestGroup, "group", "g", "", "Group chat ID (default: configured active group)")
	digestCmd.Flags().IntVarP(&digestDays, "days", "d", -1, "Summarize the last N days (default: summary.days)")
	digestCmd.Flags().StringVarP(&digestSince, "since", "s", "", "Window start (e.g., '7d', '12h', '2025-12-15'); overrides --days")
	digestCmd.Flags().BoolVar(&digestSend, "send", false, "Post the summary to the group")
	digestCmd.Flags().BoolVar(&digestPermissive, "permissive", false, "Keep commands, reactions, polls and system messages")
	digestCmd.Flags().BoolVar(&digestNoStore, "no-store", false, "Do not use the database")
	digestCmd.Flags().BoolVar(&digestPublish, "publish", true, "Publish a summary event when a broker is configured")
}

// digestOutput is the JSON shape of a digest run
type digestOutput struct {
	Summary     string         `json:"summary"`
	Fallback    bool           `json:"fallback"`
	FailureKind string         `json:"failure_kind,omitempty"`
	Confidence  string         `json:"confidence"`
	Report      *digest.Report `json:"report"`
}

func runDigest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	chatID, err := resolveGroup(digestGroup)
	if err != nil {
		return err
	}

	since, err := windowStart(digestSince, digestDays)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, appOptions{noStore: digestNoStore, permissive: digestPermissive, publish: digestPublish})
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.service.Run(ctx, chatID, digest.RunOptions{Since: since, Send: digestSend})
	if err != nil {
		return fmt.Errorf("digest failed: %w", err)
	}

	if outputFormat == "text" {
		fmt.Println(rep.Summary.Text)
		return nil
	}
	return OutputJSON(digestOutput{
		Summary:     rep.Summary.Text,
		Fallback:    rep.Summary.Fallback,
		FailureKind: string(rep.Summary.FailureKind),
		Confidence:  string(rep.Summary.Confidence),
		Report:      rep,
	})
}

// windowStart resolves --since, falling back to --days and then the
// configured summary.days
func windowStart(since string, days int) (time.Time, error) {
	if since != "" {
		t, err := utils.ParseSinceDate(since)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid since date format: %w", err)
		}
		return t, nil
	}
	if days < 0 {
		days = settings.Summary.Days
	}
	return utils.DaysAgo(days), nil
}
