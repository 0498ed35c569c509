package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/podio/internal/config"
	"github.com/kalambet/podio/internal/contact"
	"github.com/kalambet/podio/internal/podio"
	"github.com/kalambet/podio/internal/user"
)

// --- user ---

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Show or update the active user",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the active user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apis, err := newAPIs(cmd)
			if err != nil {
				return err
			}
			u, err := apis.users.GetUser(cmd.Context())
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), u)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "mail <mail>",
		Short: "Look up a user by mail address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apis, err := newAPIs(cmd)
			if err != nil {
				return err
			}
			u, err := apis.users.GetUserByMail(cmd.Context(), args[0])
			if errors.Is(err, podio.ErrNotFound) {
				return fmt.Errorf("no user with mail %s", args[0])
			}
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), u)
		},
	})

	var update user.Update
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Update locale, timezone, mail or password",
		Long: `Update settings of the active user.

Changing the mail or the password requires --old-password.

Examples:
  podio user update --locale da_DK --timezone Europe/Copenhagen
  podio user update --mail new@example.com --old-password 'current'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if update == (user.Update{}) {
				return errors.New("nothing to update: pass at least one flag")
			}
			apis, err := newAPIs(cmd)
			if err != nil {
				return err
			}
			if err := apis.users.UpdateUser(cmd.Context(), update); err != nil {
				if errors.Is(err, podio.ErrForbidden) {
					return fmt.Errorf("update rejected, check --old-password: %w", err)
				}
				return err
			}
			printSuccess("User updated")
			return nil
		},
	}
	updateCmd.Flags().StringVar(&update.Locale, "locale", "", "new locale, e.g. en_US")
	updateCmd.Flags().StringVar(&update.Timezone, "timezone", "", "new IANA timezone")
	updateCmd.Flags().StringVar(&update.Mail, "mail", "", "new primary mail address")
	updateCmd.Flags().StringVar(&update.OldPassword, "old-password", "", "current password")
	updateCmd.Flags().StringVar(&update.NewPassword, "new-password", "", "new password")
	cmd.AddCommand(updateCmd)

	return cmd
}

// --- status ---

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active user with profile and notification counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apis, err := newAPIs(cmd)
			if err != nil {
				return err
			}
			st, err := apis.users.GetStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), st)
		},
	}
}

// --- profile ---

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage the active user's profile",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the full profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apis, err := newAPIs(cmd)
			if err != nil {
				return err
			}
			p, err := apis.users.GetProfile(cmd.Context())
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), p)
		},
	})

	var (
		file    string
		partial bool
	)
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Update the profile from a JSON document",
		Long: `Update the profile from a JSON document.

Without --partial the document replaces the whole profile and every field
it leaves out is cleared. With --partial only the fields present change.

Examples:
  podio profile update --file profile.json
  echo '{"city":"Aarhus"}' | podio profile update --file - --partial`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			apis, err := newAPIs(cmd)
			if err != nil {
				return err
			}
			if partial {
				values, err := parseFieldValues(data)
				if err != nil {
					return err
				}
				if err := apis.users.UpdateProfileValues(cmd.Context(), values); err != nil {
					return err
				}
				printSuccess("Updated %d profile field(s)", len(values))
				return nil
			}

			update, err := parseProfileUpdate(data)
			if err != nil {
				return err
			}
			if err := apis.users.UpdateProfile(cmd.Context(), update); err != nil {
				return err
			}
			printSuccess("Profile replaced")
			return nil
		},
	}
	updateCmd.Flags().StringVarP(&file, "file", "f", "", "JSON file to read, or - for stdin")
	updateCmd.Flags().BoolVar(&partial, "partial", false, "only change the fields present in the document")
	_ = updateCmd.MarkFlagRequired("file")
	cmd.AddCommand(updateCmd)

	cmd.AddCommand(newProfileEditCmd(), newProfileFieldCmd())
	return cmd
}

func newProfileEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Open the profile in $EDITOR and replace it with the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			editor := os.Getenv("EDITOR")
			if editor == "" {
				editor = "vi"
			}

			apis, err := newAPIs(cmd)
			if err != nil {
				return err
			}
			p, err := apis.users.GetProfile(cmd.Context())
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(contact.UpdateFrom(p), "", "  ")
			if err != nil {
				return err
			}

			tmpFile, err := os.CreateTemp("", "podio-profile-*.json")
			if err != nil {
				return fmt.Errorf("creating temp file: %w", err)
			}
			tmpPath := tmpFile.Name()
			defer os.Remove(tmpPath)

			if _, err := tmpFile.Write(data); err != nil {
				tmpFile.Close()
				return err
			}
			tmpFile.Close()

			editorCmd := exec.Command(editor, tmpPath)
			editorCmd.Stdin = os.Stdin
			editorCmd.Stdout = os.Stdout
			editorCmd.Stderr = os.Stderr
			if err := editorCmd.Run(); err != nil {
				return fmt.Errorf("editor exited with error: %w", err)
			}

			edited, err := os.ReadFile(tmpPath)
			if err != nil {
				return err
			}
			update, err := parseProfileUpdate(edited)
			if err != nil {
				printError("profile left unchanged")
				return err
			}
			if err := apis.users.UpdateProfile(cmd.Context(), update); err != nil {
				return err
			}
			printSuccess("Profile updated")
			return nil
		},
	}
}

func newProfileFieldCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "field",
		Short: "Read or write single profile fields",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <field>...",
		Short: "Show the values of one or more fields",
		Long: `Show the values of one or more profile fields. Fields are fetched
concurrently; with several fields the result is keyed by field name.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := lookupFields(args)
			if err != nil {
				return err
			}
			apis, err := newAPIs(cmd)
			if err != nil {
				return err
			}

			results := make([][]json.RawMessage, len(fields))
			g, ctx := errgroup.WithContext(cmd.Context())
			for i, f := range fields {
				g.Go(func() error {
					values, err := user.GetProfileField(ctx, apis.users, contact.RawField(f))
					if err != nil {
						return fmt.Errorf("%s: %w", f.Name(), err)
					}
					results[i] = values
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			if len(fields) == 1 {
				return printValue(cmd.OutOrStdout(), results[0])
			}
			byName := make(map[string][]json.RawMessage, len(fields))
			for i, f := range fields {
				byName[f.Name()] = results[i]
			}
			return printValue(cmd.OutOrStdout(), byName)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <field> [value]...",
		Short: "Set a field; multi-valued fields take any number of values",
		Long: `Set a profile field.

A single-valued field takes exactly one value. A multi-valued field is
replaced by the given values; no values clears it.

Examples:
  podio profile field set city Aarhus
  podio profile field set skill go sql`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := lookupFields(args[:1])
			if err != nil {
				return err
			}
			f := fields[0]

			values := make([]json.RawMessage, 0, len(args)-1)
			for _, text := range args[1:] {
				v, err := contact.RawValue(f, text)
				if err != nil {
					return err
				}
				values = append(values, v)
			}

			apis, err := newAPIs(cmd)
			if err != nil {
				return err
			}
			raw := contact.RawField(f)
			if len(values) == 1 {
				err = user.UpdateProfileField(cmd.Context(), apis.users, raw, values[0])
			} else {
				err = user.UpdateProfileFieldValues(cmd.Context(), apis.users, raw, values...)
			}
			if err != nil {
				return err
			}
			printSuccess("Set %s", f.Name())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the known profile fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			type fieldInfo struct {
				Name   string `json:"name"`
				Single bool   `json:"single"`
			}
			var out []fieldInfo
			for _, f := range contact.Fields() {
				out = append(out, fieldInfo{Name: f.Name(), Single: f.IsSingle()})
			}
			return printValue(cmd.OutOrStdout(), out)
		},
	})

	return cmd
}

func lookupFields(names []string) ([]contact.Field, error) {
	fields := make([]contact.Field, len(names))
	for i, name := range names {
		f, ok := contact.LookupField(name)
		if !ok {
			return nil, fmt.Errorf("unknown profile field %q (see: podio profile field list)", name)
		}
		fields[i] = f
	}
	return fields, nil
}

// parseProfileUpdate decodes a full profile document. Unknown keys are
// rejected so a typo does not silently clear a field.
func parseProfileUpdate(data []byte) (contact.ProfileUpdate, error) {
	var update contact.ProfileUpdate
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&update); err != nil {
		return contact.ProfileUpdate{}, fmt.Errorf("invalid profile JSON: %w", err)
	}
	return update, nil
}

func parseFieldValues(data []byte) (contact.ProfileFieldValues, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid profile JSON: %w", err)
	}
	values := make(contact.ProfileFieldValues, len(doc))
	for name, raw := range doc {
		if _, ok := contact.LookupField(name); !ok {
			return nil, fmt.Errorf("unknown profile field %q", name)
		}
		values[name] = raw
	}
	if len(values) == 0 {
		return nil, errors.New("document contains no fields")
	}
	return values, nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// --- property ---

func newPropertyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "property",
		Short: "Manage boolean properties stored for this client",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Show a property",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apis, err := newAPIs(cmd)
			if err != nil {
				return err
			}
			v, err := apis.users.GetProperty(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), user.PropertyValue{Value: v})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <true|false>",
		Short: "Set a property",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("invalid value %q: want true or false", args[1])
			}
			apis, err := newAPIs(cmd)
			if err != nil {
				return err
			}
			if err := apis.users.SetProperty(cmd.Context(), args[0], v); err != nil {
				return err
			}
			printSuccess("Set %s = %t", args[0], v)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a property",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apis, err := newAPIs(cmd)
			if err != nil {
				return err
			}
			if err := apis.users.DeleteProperty(cmd.Context(), args[0]); err != nil {
				return err
			}
			printSuccess("Deleted %s", args[0])
			return nil
		},
	})

	return cmd
}

// --- contacts ---

func newContactsCmd() *cobra.Command {
	var (
		typ  string
		opts contact.ListOptions
	)
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "List contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apis, err := newAPIs(cmd)
			if err != nil {
				return err
			}
			var out any
			switch typ {
			case contact.Full.Name():
				out, err = contact.GetContacts(cmd.Context(), apis.contacts, contact.Full, opts)
			case contact.Short.Name():
				out, err = contact.GetContacts(cmd.Context(), apis.contacts, contact.Short, opts)
			case contact.Mini.Name():
				out, err = contact.GetContacts(cmd.Context(), apis.contacts, contact.Mini, opts)
			default:
				return fmt.Errorf("invalid --type %q: want full, short or mini", typ)
			}
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&typ, "type", contact.Short.Name(), "projection: full, short or mini")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of contacts")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of contacts to skip")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <profile_id>",
		Short: "Show one contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid profile id %q", args[0])
			}
			apis, err := newAPIs(cmd)
			if err != nil {
				return err
			}
			p, err := apis.contacts.GetContact(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), p)
		},
	})

	return cmd
}

// --- config ---

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or update configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			for _, k := range config.ShowAll(cfg) {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Set a configuration value",
		Args:      cobra.ExactArgs(2),
		ValidArgs: config.ValidKeys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := config.SetKey(key, value); err != nil {
				return err
			}
			printSuccess("Set %s = %s", key, value)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-token <token>",
		Short: "Store the API access token in the secret store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.SetSecret(config.NewKeychain(), "api.token", args[0]); err != nil {
				return err
			}
			printSuccess("Stored api.token")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-secret <key> <value>",
		Short: "Store a secret (api.token, sandbox.jwt_secret) in the secret store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.SetSecret(config.NewKeychain(), args[0], args[1]); err != nil {
				return err
			}
			printSuccess("Stored %s", args[0])
			return nil
		},
	})

	return cmd
}
