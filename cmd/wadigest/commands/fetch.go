package commands

import (
	"github.com/spf13/cobra"
)

var fetchGroup string

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Store new group messages without summarizing",
	Long: `Fetch recent history of a group and store the messages newer than the
latest one already in the database.`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVarP(&fetchGroup, "group", "g", "", "Group chat ID (default: configured active group)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	chatID, err := resolveGroup(fetchGroup)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.service.Fetch(ctx, chatID)
	if err != nil {
		return err
	}
	return OutputJSON(rep)
}
