package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nyurik/dibabel/internal/adapt"
	"github.com/nyurik/dibabel/internal/config"
	"github.com/nyurik/dibabel/internal/graph"
	"github.com/nyurik/dibabel/internal/mwapi"
	"github.com/nyurik/dibabel/internal/resolve"
	"github.com/nyurik/dibabel/internal/syncer"
)

// userAgent identifies the bot to the wiki APIs.
const userAgent = "dibabel-bot (https://github.com/nyurik/dibabel)"

// reItem validates knowledge-graph resource ids.
var reItem = regexp.MustCompile(`^Q[1-9][0-9]{0,15}$`)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	DryRun bool
	Force  bool
	Diff   bool
	Items  []string
	Sites  []string
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync <options.yaml>",
		Short: "Synchronize all tracked pages to their targets",
		Long: `Synchronize every tracked master page to its localized copies.

The knowledge graph is queried for all auto-synchronized resources, each
target is reconciled against the master's revision history, and targets
that are merely behind are updated. Targets whose content does not match
any point of master history are reported but left alone unless --force.

Example:
  dibabel sync ./options.yaml --dry-run --diff
  dibabel sync ./options.yaml --item Q63324398 --site fr.wikipedia`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.DryRun, "dry-run", "n", false, "do everything except wiki modifications")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite content even if it does not match any of the master's history")
	cmd.Flags().BoolVarP(&opts.Diff, "diff", "d", false, "show diff for each change")
	cmd.Flags().StringArrayVarP(&opts.Items, "item", "q", nil, "resource id to process, e.g. Q63324398 (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Sites, "site", nil, "restrict targets to a site, e.g. fr.wikipedia (repeatable)")

	return cmd
}

func runSync(opts *SyncOptions, optionsPath string, cmd *cobra.Command) error {
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

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sites := mwapi.NewSiteCache(mwapi.Options{UserAgent: userAgent})
	kg := graph.NewClient(graph.Options{Endpoint: cfg.Sparql})
	sourceSite := sites.Get(cfg.Source)

	cache := resolve.NewCache()
	resolver := resolve.NewResolver(cache, sourceSite, kg, cfg.Source, cfg.NonSharedAllow)
	adapter := adapt.New(resolver)

	table, err := syncer.LoadSummaryTable(ctx, sites.Get(cfg.I18nSite), cfg.I18nPage)
	if err != nil {
		slog.Warn("falling back to default edit summaries", "err", err)
	}

	orch := &syncer.Orchestrator{
		Sites:        syncer.NewSiteProvider(sites),
		Graph:        kg,
		Reconciler:   &syncer.Reconciler{Adapter: adapter},
		Summarizer:   syncer.NewSummarizer(table),
		Source:       cfg.Source,
		User:         cfg.User,
		Password:     cfg.Password,
		Pace:         cfg.Pace,
		Restrictions: cfg.Restrictions,
		Out:          cmd.OutOrStdout(),
	}
	if opts.Diff || cfg.Diff {
		orch.Diff = renderDiff
	}

	totals, err := orch.Run(ctx, syncer.Options{
		DryRun: opts.DryRun,
		Force:  opts.Force,
		Items:  opts.Items,
		Sites:  opts.Sites,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "sync run aborted", err)
	}
	if totals.Failed > 0 || totals.Blocked > 0 || totals.FailedResources > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf(
			"%d targets failed, %d blocked on missing dependencies, %d resources errored",
			totals.Failed, totals.Blocked, totals.FailedResources))
	}
	return nil
}
