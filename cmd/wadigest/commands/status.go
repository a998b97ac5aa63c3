package commands

import (
	"github.com/spf13/cobra"

	"github.com/solvaholic/wadigest/internal/db"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway, database and rate limit status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	Instance     string         `json:"instance,omitempty"`
	State        string         `json:"state,omitempty"`
	GatewayError string         `json:"gateway_error,omitempty"`
	ActiveGroup  string         `json:"active_group,omitempty"`
	SendEnabled  bool           `json:"send_enabled"`
	Database     *db.Stats      `json:"database"`
	RateLimits   []db.RateLimit `json:"rate_limits,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	out := statusOutput{
		ActiveGroup: settings.ActiveGroup,
		SendEnabled: settings.Send.Enabled,
	}

	if out.Database, err = database.Stats(); err != nil {
		return err
	}
	if out.RateLimits, err = database.RateLimits(); err != nil {
		return err
	}

	gw, err := newGateway(database)
	if err != nil {
		out.GatewayError = err.Error()
		return OutputJSON(out)
	}
	out.Instance = gw.InstanceID()
	st, err := gw.GetStateInstance(cmd.Context())
	if err != nil {
		out.GatewayError = err.Error()
	} else {
		out.State = st.State
	}
	return OutputJSON(out)
}
