package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/jasonlryan/demucs/src/shared/refine"
	"github.com/jasonlryan/demucs/src/shared/stem/manifest"
	"github.com/jasonlryan/demucs/src/shared/stem/resolver"
	"github.com/spf13/cobra"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <job>",
		Short: "Print the manifest of a separated job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := ctx.resolver()
			if err != nil {
				return err
			}

			runCtx, cancel := ctx.commandCtx()
			defer cancel()

			resolution, err := resolver.Resolve(runCtx, args[0])
			if err != nil {
				return err
			}

			return writeJSON(cmd, stemmanifest.Build(resolution))
		},
	}
}

func newLoadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "load <dir>",
		Short: "Print the manifest of a project folder anywhere on disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := ctx.resolver()
			if err != nil {
				return err
			}

			runCtx, cancel := ctx.commandCtx()
			defer cancel()

			resolution, err := stemresolver.NewLoader(resolver).LoadProject(runCtx, args[0])
			if err != nil {
				return err
			}

			return writeJSON(cmd, stemmanifest.Build(resolution))
		},
	}
}

func newFoldersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "folders <dir>",
		Short: "List the subfolders of a directory, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := ctx.resolver()
			if err != nil {
				return err
			}

			folders, err := stemresolver.NewLoader(resolver).BrowseFolders(args[0])
			if err != nil {
				return err
			}

			return writeJSON(cmd, folders)
		},
	}
}

func newSplittersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "splitters",
		Short: "List the configured splitters and whether they are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := ctx.table()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SPLITTER\tMODEL\tSTEMS\tINSTALLED")
			for _, splitter := range table.Splitters {
				_, lookErr := ctx.executor.LookPath(splitter.Binary)
				for _, model := range splitter.Models {
					fmt.Fprintf(w, "%s\t%s\t%d\t%t\n", splitter.ID, model.ID, len(model.Stems), lookErr == nil)
				}
			}

			return w.Flush()
		},
	}
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <job>",
		Short: "Suggest an instrument label for every stem of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := ctx.resolver()
			if err != nil {
				return err
			}

			runCtx, cancel := ctx.commandCtx()
			defer cancel()

			labels, err := refine.NewAnalyzer(resolver, ctx.codecs()).Analyze(runCtx, args[0])
			if err != nil {
				return err
			}

			return writeJSON(cmd, labels)
		},
	}
}
