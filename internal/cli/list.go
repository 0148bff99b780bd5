package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/nyurik/dibabel/internal/config"
	"github.com/nyurik/dibabel/internal/graph"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Items []string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <options.yaml>",
		Short: "List tracked resources and their pages",
		Long: `List every auto-synchronized resource known to the knowledge graph and
the site pages belonging to it, without touching any wiki.

Example:
  dibabel list ./options.yaml
  dibabel list ./options.yaml --item Q63324398 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Items, "item", "q", nil, "resource id to list (repeatable)")

	return cmd
}

func runList(opts *ListOptions, optionsPath string, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	for _, item := range opts.Items {
		if !reItem.MatchString(item) {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid item %q: must be a valid id like Q12345", item))
		}
	}

	cfg, err := config.Load(optionsPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load options", err)
	}

	kg := graph.NewClient(graph.Options{Endpoint: cfg.Sparql})
	todo, err := kg.TrackedPages(cmd.Context(), opts.Items)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query knowledge graph", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return formatter.Success(todo)
	}

	ids := make([]string, 0, len(todo))
	for id := range todo {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	w := cmd.OutOrStdout()
	for _, id := range ids {
		pages := todo[id]
		sort.Strings(pages)
		fmt.Fprintf(w, "%s (%d pages)\n", id, len(pages))
		for _, p := range pages {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	fmt.Fprintf(w, "%d resources\n", len(ids))
	return nil
}
