package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ewag/orthanc-graph/internal/changefeed"
	"github.com/ewag/orthanc-graph/internal/models"
	"github.com/ewag/orthanc-graph/internal/orthanc"
)

func newChangesCmd(a *app) *cobra.Command {
	var (
		changeType string
		since      int64
		maxPages   int
		failOpen   bool
	)
	cmd := &cobra.Command{
		Use:   "changes",
		Short: "List entities that reached a change type since a cursor",
		Long: `Walk the archive change log from --since until the archive reports no
more changes, printing the ids of matching events and the cursor to resume from.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cursor := changefeed.NewCursor(a.client,
				changefeed.WithSince(since),
				changefeed.WithPageLimit(a.cfg.ChangesPageLimit),
				changefeed.WithMaxPages(maxPages),
				changefeed.WithFailOpen(failOpen),
			)

			out := cmd.OutOrStdout()
			var ids []string
			for id, err := range cursor.PollNew(cmd.Context(), orthanc.ChangeType(changeType)) {
				if err != nil {
					return err
				}
				if !a.jsonOutput {
					fmt.Fprintln(out, id)
				}
				ids = append(ids, id)
			}

			if a.jsonOutput {
				if ids == nil {
					ids = []string{}
				}
				return printJSON(out, models.ChangesView{ChangeType: changeType, IDs: ids, Since: cursor.Since()})
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d %s event(s); resume with --since %d\n", len(ids), changeType, cursor.Since())
			return nil
		},
	}
	cmd.Flags().StringVar(&changeType, "type", string(orthanc.StableStudy), "Change type to list (e.g. StablePatient, StableStudy, StableSeries)")
	cmd.Flags().Int64Var(&since, "since", 0, "Sequence number to start after")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "Stop after this many pages (0 = until done)")
	cmd.Flags().BoolVar(&failOpen, "fail-open", false, "Treat an unreachable archive as no changes instead of an error")
	return cmd
}

func newResetChangesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-changes",
		Short: "Clear the archive change log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.ResetChanges(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Change log cleared.")
			return nil
		},
	}
}
