package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/benaskins/keychainctl/internal/keychain"
	"github.com/samber/mo"
	"github.com/spf13/cobra"
)

var passwordCmd = &cobra.Command{
	Use:     "password",
	Aliases: []string{"pw"},
	Short:   "Manage generic passwords in a keychain",
}

var passwordSetCmd = &cobra.Command{
	Use:   "set <keychain> <account>",
	Short: "Add a generic password",
	Long:  "Add a generic password. The password is read from --password, a prompt, or stdin (useful for piping).",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		every, _ := cmd.Flags().GetString("rotate-every")
		if every != "" {
			if _, err := keychain.ParseInterval(every); err != nil {
				return fmt.Errorf("--rotate-every: %w", err)
			}
		}

		flag, _ := cmd.Flags().GetString("password")
		password, err := readSecret(cmd, flag, "Password: ")
		if err != nil {
			return err
		}
		service := serviceFlag(cmd)

		res, err := app.store.SetGenericPassword(cmd.Context(), args[0], args[1], password, service)
		if err != nil {
			return err
		}

		if every != "" {
			name, _ := keychain.NormaliseName(args[0])
			key := keychain.MetadataKey(name, args[1], service)
			if err := app.store.Metadata().SetRotateEvery(key, every); err != nil {
				return fmt.Errorf("setting rotation interval: %w", err)
			}
		}
		return printResult(cmd.OutOrStdout(), res)
	},
}

var passwordGetCmd = &cobra.Command{
	Use:   "get <keychain> <account>",
	Short: "Print a generic password",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := app.store.GetGenericPassword(cmd.Context(), args[0], args[1], serviceFlag(cmd))
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), e)
		}
		fmt.Fprintln(cmd.OutOrStdout(), e.Password)
		return nil
	},
}

var passwordChangeCmd = &cobra.Command{
	Use:   "change <keychain> <account>",
	Short: "Change an existing generic password",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flag, _ := cmd.Flags().GetString("password")
		password, err := readSecret(cmd, flag, "New password: ")
		if err != nil {
			return err
		}
		res, err := app.store.ChangeGenericPassword(cmd.Context(), args[0], args[1], password, serviceFlag(cmd))
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), res)
	},
}

var passwordRemoveCmd = &cobra.Command{
	Use:     "remove <keychain> <account>",
	Aliases: []string{"rm"},
	Short:   "Remove a generic password",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := app.store.RemoveGenericPassword(cmd.Context(), args[0], args[1], serviceFlag(cmd))
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), res)
	},
}

var passwordListCmd = &cobra.Command{
	Use:     "list <keychain>",
	Aliases: []string{"ls"},
	Short:   "List generic passwords",
	Long:    "List every generic password in the keychain. Passwords are masked unless --show-secrets is given.",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := app.store.ListAccounts(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		show, _ := cmd.Flags().GetBool("show-secrets")
		if !show {
			for i := range entries {
				entries[i].Password = "****"
			}
		}

		out := cmd.OutOrStdout()
		if jsonOut {
			if entries == nil {
				entries = []keychain.Entry{}
			}
			return printJSON(out, entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No passwords stored")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ACCOUNT\tSERVICE\tPASSWORD")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.Account, e.Service.OrElse("-"), e.Password)
		}
		return w.Flush()
	},
}

var passwordRotateCmd = &cobra.Command{
	Use:   "rotate <keychain> <account>",
	Short: "Replace a password with the output of a command",
	Long:  "Run --command with /bin/sh and store its stdout as the new password. A failing command leaves the password unchanged.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		command, _ := cmd.Flags().GetString("command")
		res, err := app.store.Rotate(cmd.Context(), args[0], args[1], serviceFlag(cmd), command)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), res)
	},
}

type staleEntry struct {
	Key         string    `json:"key"`
	RotateEvery string    `json:"rotate_every"`
	LastWritten time.Time `json:"last_written"`
}

var passwordStaleCmd = &cobra.Command{
	Use:   "stale",
	Short: "List passwords overdue for rotation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		meta := app.store.Metadata()
		stale := []staleEntry{}
		for _, key := range meta.Stale(time.Now().UTC()) {
			m := meta.Get(key)
			last := m.CreatedAt
			if m.LastChanged.After(last) {
				last = m.LastChanged
			}
			stale = append(stale, staleEntry{Key: key, RotateEvery: m.RotateEvery, LastWritten: last})
		}

		out := cmd.OutOrStdout()
		if jsonOut {
			return printJSON(out, stale)
		}
		if len(stale) == 0 {
			fmt.Fprintln(out, "No passwords overdue for rotation")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tROTATE EVERY\tLAST WRITTEN")
		for _, s := range stale {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Key, s.RotateEvery, s.LastWritten.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

func serviceFlag(cmd *cobra.Command) mo.Option[string] {
	if !cmd.Flags().Changed("service") {
		return mo.None[string]()
	}
	s, _ := cmd.Flags().GetString("service")
	return mo.Some(s)
}

func init() {
	for _, c := range []*cobra.Command{passwordSetCmd, passwordGetCmd, passwordChangeCmd, passwordRemoveCmd, passwordRotateCmd} {
		c.Flags().String("service", "", "Service label of the entry")
	}
	passwordSetCmd.Flags().String("password", "", "Password value")
	passwordSetCmd.Flags().String("rotate-every", "", "Rotation interval, e.g. 30d or 12h")
	passwordChangeCmd.Flags().String("password", "", "New password value")
	passwordListCmd.Flags().Bool("show-secrets", false, "Print passwords in clear")
	passwordRotateCmd.Flags().String("command", "", "Command that prints the new password")
	passwordRotateCmd.MarkFlagRequired("command")

	passwordCmd.AddCommand(passwordSetCmd)
	passwordCmd.AddCommand(passwordGetCmd)
	passwordCmd.AddCommand(passwordChangeCmd)
	passwordCmd.AddCommand(passwordRemoveCmd)
	passwordCmd.AddCommand(passwordListCmd)
	passwordCmd.AddCommand(passwordRotateCmd)
	passwordCmd.AddCommand(passwordStaleCmd)
	rootCmd.AddCommand(passwordCmd)
}
