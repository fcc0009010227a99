package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"subgen/internal/client"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var format string
	var mode string
	var timestamps bool
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export <taskID>",
		Short: "Export a task's subtitles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				content, err := c.Export(cmd.Context(), args[0], format, mode, timestamps)
				if err != nil {
					return err
				}
				if outputPath == "" {
					fmt.Fprint(cmd.OutOrStdout(), content)
					return nil
				}
				if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", outputPath, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outputPath)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "srt", "Export format (srt, txt)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Text mode (original, translated, bilingual)")
	cmd.Flags().BoolVar(&timestamps, "timestamps", false, "Include timestamps in txt output")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write to file instead of stdout")
	return cmd
}
