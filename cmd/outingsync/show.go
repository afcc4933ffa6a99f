package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/outingsync/internal/activity"
	"github.com/dgnsrekt/outingsync/internal/api"
	"github.com/dgnsrekt/outingsync/internal/sync"
)

type showOutput struct {
	Activity *activity.Snapshot `json:"activity,omitempty"`
	Comments []api.Comment      `json:"comments"`
	Cursor   sync.Cursor        `json:"cursor"`
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <activity-id>",
		Short: "Fetch an activity and its comments once and print them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			activityID, err := parseActivityID(args[0])
			if err != nil {
				return err
			}
			if cfg.API.Token == "" {
				return errNoToken
			}

			a, err := buildApp(cfg, activityID, nil, nil, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			comments, act := a.Refresh(cmd.Context())
			for _, res := range []sync.TickResult{comments, act} {
				if res.Err != nil {
					return fmt.Errorf("fetching %s: %w", res.Loop, res.Err)
				}
			}

			out := showOutput{
				Comments: a.Comments(),
				Cursor:   a.Thread().Cursor(),
			}
			if snap, ok := a.Activity(); ok {
				out.Activity = &snap
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}
