package main

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/maildrift/mailedit/config"
	"github.com/maildrift/mailedit/state"
)

// newRecoverCmd lists the staging files preserved after failed edit
// attempts, so their contents can be salvaged by hand.
func newRecoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "List preserved staging files from failed edit attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			stateDir, err := cmd.Flags().GetString("state-dir")
			if err != nil {
				return err
			}
			prune, err := cmd.Flags().GetBool("prune")
			if err != nil {
				return err
			}

			journal, err := state.NewJournal(stateDir)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}

			entries := journal.List()
			if prune {
				entries, err = journal.Prune()
				if err != nil {
					return err
				}
			}

			if len(entries) == 0 {
				pterm.Info.Println("No preserved staging files")
				return nil
			}

			rows := pterm.TableData{{"When", "Mailbox", "Message", "Staging file", "Error"}}
			for _, e := range entries {
				rows = append(rows, []string{
					e.Time.Format(time.RFC3339),
					e.Mailbox,
					fmt.Sprintf("%d", e.Index+1),
					e.StagingPath,
					e.Err,
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
		},
	}

	defaultStateDir := ""
	if dir, err := config.DefaultStateDir(); err == nil {
		defaultStateDir = dir
	}
	cmd.Flags().String("state-dir", defaultStateDir, "Directory holding the recovery journal")
	cmd.Flags().Bool("prune", false, "Drop journal entries whose staging file is gone")

	return cmd
}
