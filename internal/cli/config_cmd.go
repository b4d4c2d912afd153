package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/soyeahso/gaia/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and edit the config file",
		Long: "Keys are dotted paths into the YAML file, e.g. cache.redis.addr or agent.windowSize.\n" +
			"Values are read as YAML, so 8080 is a number and [a, b] a list.",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print a value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				raw, err := config.LoadRaw(paths.Config)
				if err != nil {
					return err
				}
				v, err := raw.Get(args[0])
				if err != nil {
					return keyError(args[0], err)
				}
				return printValue(cmd.OutOrStdout(), v)
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set a value",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				v := parseValue(args[1])
				if err := editConfig(func(raw config.Raw) error { return raw.Set(args[0], v) }); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", args[0], v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "unset <key>",
			Short: "Remove a value so its default applies",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				err := editConfig(func(raw config.Raw) error { return raw.Unset(args[0]) })
				if err != nil {
					return keyError(args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s removed\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check the effective config and list problems",
			Args:  cobra.NoArgs,
			RunE:  runConfigValidate,
		},
	)
	return cmd
}

// editConfig applies fn to the file and saves it, unless the result no
// longer decodes into a Config (e.g. a string where a port belongs).
func editConfig(fn func(config.Raw) error) error {
	raw, err := config.LoadRaw(paths.Config)
	if err != nil {
		return err
	}
	if err := fn(raw); err != nil {
		return err
	}
	if _, err := raw.Decode(); err != nil {
		return err
	}
	return raw.Save(paths.Config)
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	issues := config.Validate(&cfg)
	if len(issues) == 0 {
		fmt.Fprintln(out, "Config OK")
		return nil
	}
	for _, issue := range issues {
		fmt.Fprintf(out, "  - %s\n", issue)
	}
	return fmt.Errorf("config has %d issue(s)", len(issues))
}

func keyError(key string, err error) error {
	if errors.Is(err, config.ErrKeyNotFound) {
		return fmt.Errorf("key %q not found", key)
	}
	return err
}

// printValue writes scalars on one line and sections as YAML.
func printValue(w io.Writer, v any) error {
	switch v.(type) {
	case map[string]any, config.Raw, []any:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	_, err := fmt.Fprintln(w, v)
	return err
}

// parseValue reads s as YAML. Empty input and anything YAML rejects stay
// plain strings.
func parseValue(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	return v
}
