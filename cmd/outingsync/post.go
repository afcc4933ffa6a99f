package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/outingsync/internal/notify"
)

func postCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "post <activity-id> <text>...",
		Short: "Post one comment and exit",
		Long: `Post one comment to the activity's thread.

On failure the comment text is printed to stderr so nothing typed is lost,
and the command exits non-zero.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			activityID, err := parseActivityID(args[0])
			if err != nil {
				return err
			}
			if cfg.API.Token == "" {
				return errNoToken
			}

			ntfyCfg := notify.LoadConfig()
			if err := ntfyCfg.Validate(); err != nil {
				return fmt.Errorf("notify config: %w", err)
			}

			a, err := buildApp(cfg, activityID, notify.New(ntfyCfg, logger), nil, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			a.SetDraft(strings.Join(args[1:], " "))
			res, err := a.Submit(cmd.Context())
			if err != nil {
				if draft := a.Draft(); draft != "" {
					fmt.Fprintf(os.Stderr, "Not posted, your comment was:\n%s\n", draft)
				}
				return err
			}

			logger.Info("comment posted",
				zap.Int64("id", res.Item.ID),
				zap.Time("created_at", res.Item.CreatedAt),
			)
			return printJSON(cmd.OutOrStdout(), res.Item)
		},
	}
}
