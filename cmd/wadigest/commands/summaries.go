package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	sumGroup string
	sumLimit int
	sumAll   bool
)

// summariesCmd represents the summaries command
var summariesCmd = &cobra.Command{
	Use:   "summaries",
	Short: "List stored summaries",
	RunE:  runSummaries,
}

func init() {
	rootCmd.AddCommand(summariesCmd)

	summariesCmd.Flags().StringVarP(&sumGroup, "group", "g", "", "Group chat ID (default: configured active group)")
	summariesCmd.Flags().IntVarP(&sumLimit, "limit", "n", 10, "Number of summaries")
	summariesCmd.Flags().BoolVar(&sumAll, "all", false, "List summaries of every group")
}

func runSummaries(cmd *cobra.Command, args []string) error {
	chatID := ""
	if !sumAll {
		var err error
		if chatID, err = resolveGroup(sumGroup); err != nil {
			return err
		}
	}

	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	summaries, err := database.RecentSummaries(chatID, sumLimit)
	if err != nil {
		return err
	}

	if outputFormat == "text" {
		for _, s := range summaries {
			fmt.Printf("# %s %s (%d messages)\n\n%s\n\n", s.ChatID, s.CreatedAt.Local().Format("2006-01-02 15:04"), s.MessageCount, s.Text)
		}
		return nil
	}
	return OutputJSON(summaries)
}
