package main

import (
	"fmt"

	"github.com/benaskins/keychainctl/internal/watch"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Report keychains added or removed outside keychainctl",
	Long:  "Watch the keychain directory and print membership changes of the search list until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		w := watch.New(watch.Config{
			Dir:    app.cfg.KeychainDir,
			Lister: app.store,
			OnChange: func(d watch.Diff) {
				if jsonOut {
					printJSON(out, d)
					return
				}
				for _, n := range d.Added {
					fmt.Fprintln(out, addedStyle.Render("+"), n)
				}
				for _, n := range d.Removed {
					fmt.Fprintln(out, removedStyle.Render("-"), n)
				}
			},
		})
		return w.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
