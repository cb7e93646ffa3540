package main

import (
	"encoding/hex"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/gasmon/internal/decoder"
	"github.com/srg/gasmon/internal/fault"
)

func newDecodeCmd() *cobra.Command {
	var useHex bool
	cmd := &cobra.Command{
		Use:   "decode <payload>...",
		Short: "Decode gas sensor payloads",
		Long: `Decode notification payloads into readings.

A payload is base64 (or hex with --hex) whose first four bytes are a
little-endian IEEE-754 float. Values are printed with three decimals.`,
		Example: `  gasmon decode AACAPw==
  gasmon decode --hex 0000803f`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, payload := range args {
				v, err := decodePayload(payload, useHex)
				if err != nil {
					_ = w.Flush()
					return fmt.Errorf("%s: %w", payload, err)
				}
				fmt.Fprintf(w, "%s\t%s\n", payload, decoder.Format(v))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&useHex, "hex", false, "Payloads are hex encoded")
	return cmd
}

func decodePayload(payload string, useHex bool) (float32, error) {
	if !useHex {
		return decoder.Decode(payload)
	}
	raw, err := hex.DecodeString(strings.ReplaceAll(payload, ":", ""))
	if err != nil {
		return 0, fault.MalformedPayload("", fmt.Errorf("invalid hex: %w", err))
	}
	return decoder.DecodeRaw(raw)
}
