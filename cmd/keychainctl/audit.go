package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/benaskins/keychainctl/internal/audit"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent audit log entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("lines")
		entries, err := audit.Tail(app.cfg.AuditLog, n)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOut {
			if entries == nil {
				entries = []audit.Entry{}
			}
			return printJSON(out, entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No audit entries")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tACTION\tKEYCHAIN\tACCOUNT\tSERVICE\tERROR")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Local().Format(time.DateTime), e.Action, e.Keychain,
				dash(e.Account), dash(e.Service), dash(e.Error))
		}
		return w.Flush()
	},
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	auditCmd.Flags().IntP("lines", "n", 20, "Number of entries to show (0 for all)")
	rootCmd.AddCommand(auditCmd)
}
