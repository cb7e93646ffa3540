package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/gasmon/internal/bledb"
)

func newChannelsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List the channel table",
		Long: `List the channels that monitor subscribes to: the default gas sensor
table, or the table loaded from --channels-file.

The yaml format can be used as a starting point for a custom channel file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "table" && format != "yaml" {
				return fmt.Errorf("invalid format '%s': must be one of [table yaml]", format)
			}

			env, err := setupRuntime(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			out := cmd.OutOrStdout()
			if format == "yaml" {
				data, err := env.channels.Marshal()
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "LABEL\tUNIT\tSERVICE\tCHARACTERISTIC")
			for _, ch := range env.channels.All() {
				unit := ch.Unit
				if unit == "" {
					unit = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ch.Label, unit, describeUUID(ch.Service, true), describeUUID(ch.Characteristic, false))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, yaml)")
	return cmd
}

// describeUUID appends the SIG name when one is known
func describeUUID(uuid string, service bool) string {
	name := bledb.LookupCharacteristic(uuid)
	if service {
		name = bledb.LookupService(uuid)
	}
	short := bledb.NormalizeUUID(uuid)
	if name == "" {
		return short
	}
	return fmt.Sprintf("%s (%s)", short, name)
}
