package main

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"text/tabwriter"

	"github.com/benaskins/keychainctl/internal/keychain"
	"github.com/benaskins/keychainctl/internal/vault"
	"github.com/samber/mo"
	"github.com/spf13/cobra"
)

var keychainCmd = &cobra.Command{
	Use:     "keychain",
	Aliases: []string{"kc"},
	Short:   "Create, inspect and lock keychains",
}

var keychainCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a keychain",
	Long:  "Create a keychain protected by a password. The password is read from --password, a prompt, or stdin.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flag, _ := cmd.Flags().GetString("password")
		password, err := readSecret(cmd, flag, "Keychain password: ")
		if err != nil {
			return err
		}

		res, err := app.store.Create(cmd.Context(), args[0], password)
		if err != nil {
			return err
		}

		remember, _ := cmd.Flags().GetBool("remember")
		if remember || app.cfg.RememberPasswords {
			name, _ := keychain.NormaliseName(args[0])
			if err := app.vault.Set(name, password); err != nil {
				slog.Warn("could not remember keychain password", "keychain", name, "error", err)
			}
		}
		return printResult(cmd.OutOrStdout(), res)
	},
}

var keychainDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a keychain and forget its remembered password",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := app.store.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		name, _ := keychain.NormaliseName(args[0])
		if err := app.vault.Delete(name); err != nil {
			slog.Debug("could not forget keychain password", "keychain", name, "error", err)
		}
		return printResult(cmd.OutOrStdout(), res)
	},
}

var keychainListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List keychains on the search list",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := app.store.List(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOut {
			if names == nil {
				names = []string{}
			}
			return printJSON(out, names)
		}
		if len(names) == 0 {
			fmt.Fprintln(out, "No keychains")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME")
		for _, n := range names {
			fmt.Fprintln(w, n)
		}
		return w.Flush()
	},
}

var keychainExistsCmd = &cobra.Command{
	Use:   "exists <name>",
	Short: "Report whether a keychain is on the search list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exists, err := app.store.Exists(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), map[string]bool{"exists": exists})
		}
		fmt.Fprintln(cmd.OutOrStdout(), exists)
		return nil
	},
}

var keychainInfoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show lock-on-sleep and idle timeout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := app.store.ShowSettings(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOut {
			return printJSON(out, s)
		}
		fields := s.Fields()
		if len(fields) == 0 {
			fmt.Fprintln(out, dimStyle.Render("No settings reported (no timeout, lock-on-sleep off)"))
			return nil
		}
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, k := range keys {
			fmt.Fprintf(w, "%s:\t%s\n", k, fields[k])
		}
		return w.Flush()
	},
}

var keychainSettingsCmd = &cobra.Command{
	Use:   "settings <name>",
	Short: "Set lock-on-sleep and idle timeout",
	Long:  "Write both settings at once. Without --timeout the keychain never locks on idle.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lockOnSleep, _ := cmd.Flags().GetBool("lock-on-sleep")
		timeout := mo.None[int]()
		if cmd.Flags().Changed("timeout") {
			secs, _ := cmd.Flags().GetInt("timeout")
			timeout = mo.Some(secs)
		}
		res, err := app.store.SetSettings(cmd.Context(), args[0], lockOnSleep, timeout)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), res)
	},
}

var keychainUnlockCmd = &cobra.Command{
	Use:   "unlock <name>",
	Short: "Unlock a keychain",
	Long:  "Unlock a keychain with --password, its remembered password, or a prompt.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			if name, err := keychain.NormaliseName(args[0]); err == nil {
				remembered, err := app.vault.Get(name)
				switch {
				case err == nil:
					password = remembered
				case !errors.Is(err, vault.ErrNotFound):
					slog.Warn("could not read remembered password", "keychain", name, "error", err)
				}
			}
		}
		password, err := readSecret(cmd, password, "Keychain password: ")
		if err != nil {
			return err
		}
		res, err := app.store.Unlock(cmd.Context(), args[0], password)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), res)
	},
}

var keychainLockCmd = &cobra.Command{
	Use:   "lock <name>",
	Short: "Lock a keychain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := app.store.Lock(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), res)
	},
}

func init() {
	keychainCreateCmd.Flags().String("password", "", "Keychain password")
	keychainCreateCmd.Flags().Bool("remember", false, "Remember the password for unlock")
	keychainSettingsCmd.Flags().Bool("lock-on-sleep", false, "Lock when the machine sleeps")
	keychainSettingsCmd.Flags().Int("timeout", 0, "Lock after this many idle seconds")
	keychainUnlockCmd.Flags().String("password", "", "Keychain password")

	keychainCmd.AddCommand(keychainCreateCmd)
	keychainCmd.AddCommand(keychainDeleteCmd)
	keychainCmd.AddCommand(keychainListCmd)
	keychainCmd.AddCommand(keychainExistsCmd)
	keychainCmd.AddCommand(keychainInfoCmd)
	keychainCmd.AddCommand(keychainSettingsCmd)
	keychainCmd.AddCommand(keychainUnlockCmd)
	keychainCmd.AddCommand(keychainLockCmd)
	rootCmd.AddCommand(keychainCmd)
}
