package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"subgen/internal/client"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var language string
	var targetLang string
	var synthesize bool
	var subtitleStyle string
	var start bool

	cmd := &cobra.Command{
		Use:   "add <file>...",
		Short: "Queue video files for subtitle generation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				out := cmd.OutOrStdout()
				for _, arg := range args {
					path, err := filepath.Abs(arg)
					if err != nil {
						return fmt.Errorf("resolve %s: %w", arg, err)
					}
					view, err := c.CreateTask(cmd.Context(), client.CreateTaskRequest{
						FilePath:      path,
						Language:      language,
						TargetLang:    targetLang,
						Synthesize:    synthesize,
						SubtitleStyle: subtitleStyle,
						AutoStart:     start,
					})
					if err != nil {
						return fmt.Errorf("%s: %w", arg, err)
					}
					fmt.Fprintf(out, "Queued %s as %s (%s)\n", view.FileName, view.ID, view.Status)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Source audio language hint for recognition")
	cmd.Flags().StringVarP(&targetLang, "target-lang", "t", "", "Translate subtitles into this language")
	cmd.Flags().BoolVar(&synthesize, "synthesize", false, "Burn subtitles into an output video")
	cmd.Flags().StringVar(&subtitleStyle, "style", "", "ASS style overrides for burned subtitles")
	cmd.Flags().BoolVar(&start, "start", false, "Start processing immediately")
	return cmd
}
