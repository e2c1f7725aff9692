package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newRootCommand(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "stemctl",
		Short:         "Separate audio into stems and inspect separated jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ctx.stemRoot, "stem-root", "", "Folder holding separated stems (default $STEM_ROOT or ./separated)")
	flags.StringVar(&ctx.uploadDir, "upload-dir", "", "Folder holding uploaded sources (default $UPLOAD_DIR or ./uploads)")
	flags.StringVar(&ctx.splitterTable, "splitter-table", "", "TOML file overriding the splitter table")
	flags.StringVar(&ctx.ffmpegBinPath, "ffmpeg", "", "Path to ffmpeg, needed for anything but WAV")
	flags.DurationVar(&ctx.timeout, "timeout", 0, "Give up after this long, 0 waits forever")

	rootCmd.AddCommand(newResolveCommand(ctx))
	rootCmd.AddCommand(newLoadCommand(ctx))
	rootCmd.AddCommand(newFoldersCommand(ctx))
	rootCmd.AddCommand(newSplittersCommand(ctx))
	rootCmd.AddCommand(newAnalyzeCommand(ctx))
	rootCmd.AddCommand(newSeparateCommand(ctx))
	rootCmd.AddCommand(newRefineCommand(ctx))

	return rootCmd
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
