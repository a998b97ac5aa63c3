package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/solvaholic/wadigest/internal/db"
	"github.com/solvaholic/wadigest/internal/normalize"
	"github.com/solvaholic/wadigest/internal/summarize"
	"github.com/solvaholic/wadigest/internal/utils"
)

var (
	msgGroup string
	msgSince string
	msgUntil string
	msgLimit int
)

// messagesCmd represents the messages command
var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Query stored messages",
	Long:  `Query stored messages of a group in chronological order.`,
	RunE:  runMessages,
}

func init() {
	rootCmd.AddCommand(messagesCmd)

	messagesCmd.Flags().StringVarP(&msgGroup, "group", "g", "", "Group chat ID (default: configured active group)")
	messagesCmd.Flags().StringVarP(&msgSince, "since", "s", "", "Start date (e.g., '7d', '2025-12-15')")
	messagesCmd.Flags().StringVarP(&msgUntil, "until", "u", "", "End date (e.g., '1d', '2025-12-15')")
	messagesCmd.Flags().IntVarP(&msgLimit, "limit", "n", 100, "Most recent N messages (0 for all)")
}

func runMessages(cmd *cobra.Command, args []string) error {
	chatID, err := resolveGroup(msgGroup)
	if err != nil {
		return err
	}

	q := db.MessageQuery{ChatID: chatID, Limit: msgLimit}
	if msgSince != "" {
		t, err := utils.ParseSinceDate(msgSince)
		if err != nil {
			return fmt.Errorf("invalid since date format: %w", err)
		}
		start := t.Unix()
		q.Start = &start
	}
	if msgUntil != "" {
		t, err := utils.ParseSinceDate(msgUntil)
		if err != nil {
			return fmt.Errorf("invalid until date format: %w", err)
		}
		end := t.Unix()
		q.End = &end
	}

	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	messages, err := database.GetMessages(q)
	if err != nil {
		return err
	}

	switch outputFormat {
	case "text":
		fmt.Println(summarize.FormatForPrompt(messages, time.Local))
		return nil
	case "jsonl":
		for _, m := range messages {
			if err := OutputJSON(m); err != nil {
				return err
			}
		}
		return nil
	}
	return OutputJSON(struct {
		ChatID   string                       `json:"chat_id"`
		Count    int                          `json:"count"`
		Messages []normalize.CanonicalMessage `json:"messages"`
	}{chatID, len(messages), messages})
}
