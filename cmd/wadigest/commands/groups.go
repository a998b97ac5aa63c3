package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solvaholic/wadigest/internal/cache"
	"github.com/solvaholic/wadigest/internal/db"
	"github.com/solvaholic/wadigest/internal/logger"
)

var (
	groupsRefresh bool
	groupsInfo    string
)

// groupsCmd represents the groups command
var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List WhatsApp groups",
	Long: `List known groups from the database. With --refresh the list is fetched
from the gateway first; with --info the metadata of one group is fetched and
stored.`,
	RunE: runGroups,
}

func init() {
	rootCmd.AddCommand(groupsCmd)

	groupsCmd.Flags().BoolVarP(&groupsRefresh, "refresh", "r", false, "Fetch the group list from the gateway")
	groupsCmd.Flags().StringVar(&groupsInfo, "info", "", "Fetch metadata of one group ID")
}

func runGroups(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logger.Get()

	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	if groupsRefresh || groupsInfo != "" {
		gw, err := newGateway(database)
		if err != nil {
			return err
		}

		if groupsInfo != "" {
			data, err := gw.GetGroupData(ctx, groupsInfo)
			if err != nil {
				return fmt.Errorf("failed to get group data: %w", err)
			}
			owner := data.Owner
			if err := database.SaveGroup(&db.Group{ID: data.GroupID, Name: data.Subject, Owner: &owner, Participants: len(data.Participants)}); err != nil {
				log.Warn().Err(err).Msg("Failed to save group")
			}
			return OutputJSON(data)
		}

		groups, err := gw.Groups(ctx)
		if err != nil {
			return fmt.Errorf("failed to list groups: %w", err)
		}
		for _, g := range groups {
			if err := database.SaveGroup(&db.Group{ID: g.ID, Name: g.Name}); err != nil {
				log.Warn().Err(err).Str("group", g.ID).Msg("Failed to save group")
			}
		}
		if store, err := cache.New(settings.CacheDir); err == nil {
			if err := store.SaveGroupIndex(groups); err != nil {
				log.Warn().Err(err).Msg("Failed to cache group list")
			}
		}
	}

	groups, err := database.ListGroups()
	if err != nil {
		return err
	}
	if outputFormat == "text" {
		for _, g := range groups {
			marker := " "
			if g.ID == settings.ActiveGroup {
				marker = "*"
			}
			fmt.Printf("%s %s\t%s\n", marker, g.ID, g.Name)
		}
		return nil
	}
	return OutputJSON(groups)
}
