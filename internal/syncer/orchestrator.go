package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nyurik/dibabel/internal/mwapi"
	"github.com/nyurik/dibabel/internal/resolve"
	"github.com/nyurik/dibabel/internal/wiki"
)

// Graph enumerates the tracked logical resources.
type Graph interface {
	TrackedPages(ctx context.Context, ids []string) (map[string][]string, error)
}

// Options are the per-run policy flags.
type Options struct {
	DryRun   bool
	Force    bool
	ShowDiff bool

	// Items restricts the run to the given resource ids.
	Items []string

	// Sites is an allow-list filter of target site identifiers
	// (e.g. "fr.wikipedia"); empty means all.
	Sites []string
}

// Totals aggregates the per-target decisions of a run.
type Totals struct {
	Resources       int
	Updated         int // published, or would have been published
	Failed          int
	Unrecognized    int
	UpToDate        int
	Blocked         int
	Inaccessible    int
	FailedResources int
}

// Orchestrator drives the full pipeline: enumerate resources, reconcile
// each target, apply policy, publish.
type Orchestrator struct {
	Sites      SiteProvider
	Graph      Graph
	Reconciler *Reconciler
	Summarizer *Summarizer

	// Source is the https origin of the configured source site; exactly one
	// page per resource must live there.
	Source string

	User     string
	Password string

	// Pace is the advisory delay between successive publishes.
	Pace time.Duration

	// Restrictions disables publishing for specific resource/site pairs:
	// resource id -> site identifiers. Suppressed targets still count as
	// "would update".
	Restrictions map[string][]string

	// Out receives the human-readable per-resource report.
	Out io.Writer

	// Diff renders old vs new content for --diff output. Optional.
	Diff func(old, new string) string

	// Sleep is the pacing primitive, injectable for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run processes every tracked resource. A single resource's failure is
// isolated: logged, counted, and the batch continues. Cache consistency
// errors are fatal and abort the run.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Totals, error) {
	var totals Totals
	slog.Info("starting sync run",
		"run", uuid.NewString(), "dry_run", opts.DryRun, "force", opts.Force)
	todo, err := o.Graph.TrackedPages(ctx, opts.Items)
	if err != nil {
		return totals, fmt.Errorf("enumerating tracked resources: %w", err)
	}
	fmt.Fprintf(o.Out, "Processing %d pages\n", len(todo))

	ids := make([]string, 0, len(todo))
	for id := range todo {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, qid := range ids {
		if err := ctx.Err(); err != nil {
			return totals, err
		}
		totals.Resources++
		if err := o.processResource(ctx, qid, todo[qid], opts, &totals); err != nil {
			if resolve.IsConsistencyError(err) {
				return totals, err
			}
			fmt.Fprintf(o.Out, "\n******************** ERROR ********************\nFailed to process %s: %v\n", qid, err)
			slog.Error("failed to process resource", "qid", qid, "err", err)
			totals.FailedResources++
		}
	}
	fmt.Fprintln(o.Out, "Done")
	return totals, nil
}

func (o *Orchestrator) processResource(ctx context.Context, qid string, pageURLs []string, opts Options, totals *Totals) error {
	master, targetPages, bad, err := o.splitPages(pageURLs, qid)
	if err != nil {
		return err
	}
	if len(bad) > 0 {
		slog.Warn("unable to parse page urls", "qid", qid, "urls", strings.Join(bad, " "))
	}
	targetPages = filterSites(targetPages, opts.Sites)

	fmt.Fprintf(o.Out, "Processing %s (%s) -- %d pages\n", master, qid, len(targetPages))
	var updated, failed, unrecognized, upToDate, blocked, inaccessible int
	var missingDeps []string

	for _, page := range targetPages {
		target, err := o.loadTarget(ctx, page)
		if err != nil {
			slog.Error("failed to fetch target", "qid", qid, "target", page.String(), "err", err)
			failed++
			continue
		}
		if !target.Exists {
			slog.Warn("target page does not exist", "qid", qid, "target", page.String())
			inaccessible++
			continue
		}
		outcome, err := o.Reconciler.Reconcile(ctx, master, target)
		if err != nil {
			if resolve.IsConsistencyError(err) {
				return err
			}
			slog.Error("failed to reconcile target", "qid", qid, "target", page.String(), "err", err)
			failed++
			continue
		}
		if len(outcome.NonShared) > 0 {
			slog.Warn("page depends on non-shared resources",
				"qid", qid, "target", page.String(), "deps", strings.Join(outcome.NonShared, ", "))
		}
		switch {
		case len(outcome.Missing) > 0:
			// Nothing safe to write, force or not.
			blocked++
			missingDeps = appendMissing(missingDeps, outcome.Missing)
			fmt.Fprintf(o.Out, "------- BLOCKED %s: missing dependencies: %s -------\n",
				target, strings.Join(outcome.Missing, ", "))
		case outcome.Found && len(outcome.Changes) == 0:
			slog.Debug("target is up to date", "qid", qid, "target", page.String())
			upToDate++
		case (outcome.Found || opts.Force) && outcome.HasDesired:
			ok, err := o.publish(ctx, qid, master, target, outcome, opts)
			if err != nil {
				slog.Error("failed to publish", "qid", qid, "target", page.String(), "err", err)
				failed++
				continue
			}
			if ok {
				updated++
			}
		default:
			unrecognized++
			fmt.Fprintf(o.Out, "------- SKIPPING unrecognized content in %s -------\n", target)
			o.printDiff(target.Content, outcome)
		}
	}

	fmt.Fprintf(o.Out, "Done with %s : %d total, %d updated, %d failed, %d have unrecognized content, %d are up to date.\n",
		master, len(targetPages), updated, failed, unrecognized, upToDate)
	if blocked > 0 {
		fmt.Fprintf(o.Out, "  %d blocked on missing dependencies: %s\n", blocked, strings.Join(missingDeps, ", "))
	}
	if inaccessible > 0 {
		fmt.Fprintf(o.Out, "  %d pages do not exist\n", inaccessible)
	}
	totals.Updated += updated
	totals.Failed += failed
	totals.Unrecognized += unrecognized
	totals.UpToDate += upToDate
	totals.Blocked += blocked
	totals.Inaccessible += inaccessible
	return nil
}

// publish composes the summary and submits the edit, honoring dry-run and
// per-resource restrictions. Returns true when the target counts as updated
// (including suppressed writes, which still count toward the report).
func (o *Orchestrator) publish(ctx context.Context, qid string, master *Master, target *Target, outcome Outcome, opts Options) (bool, error) {
	summary, err := o.Summarizer.Compose(ctx, master, target, outcome.Changes)
	if err != nil {
		return false, err
	}
	verb := "UPDATING"
	if opts.DryRun {
		verb = "WOULD UPDATE"
	}
	fmt.Fprintf(o.Out, "------- %s %s -------\n%s\n", verb, target, summary)
	o.printDiff(target.Content, outcome)

	if opts.DryRun {
		fmt.Fprintln(o.Out, "Running in dry mode, wiki update is skipped")
		return true, nil
	}
	if o.isRestricted(qid, target.Page.Site) {
		fmt.Fprintf(o.Out, "Updates to %s are restricted for %s, wiki update is skipped\n", target, qid)
		return true, nil
	}
	if !target.Site.LoggedIn() {
		if err := target.Site.Login(ctx, o.User, o.Password); err != nil {
			return false, err
		}
	}
	if err := target.Site.Edit(ctx, target.Page.Title, outcome.Desired, summary, target.Timestamp); err != nil {
		if mwapi.IsConflict(err) {
			return false, fmt.Errorf("edit conflict, someone modified the target: %w", err)
		}
		return false, err
	}
	if err := o.pace(ctx); err != nil {
		return true, err
	}
	return true, nil
}

func (o *Orchestrator) printDiff(old string, outcome Outcome) {
	if o.Diff == nil || !outcome.HasDesired {
		return
	}
	fmt.Fprintln(o.Out, o.Diff(old, outcome.Desired))
}

// splitPages classifies a resource's page URLs into the master (on the
// source site), targets, and unparseable leftovers. Exactly one master is
// required.
func (o *Orchestrator) splitPages(pageURLs []string, qid string) (*Master, []wiki.SitePage, []string, error) {
	var master *Master
	var targets []wiki.SitePage
	var bad []string
	for _, raw := range pageURLs {
		p, err := wiki.ParsePageURL(raw)
		if err != nil {
			bad = append(bad, raw)
			continue
		}
		if p.Domain == o.Source {
			if master != nil {
				return nil, nil, nil, fmt.Errorf("multiple master pages for %s: %s and %s", qid, master.Page.Title, p.Title)
			}
			master = NewMaster(p, o.Sites.Get(p.Domain))
		} else {
			targets = append(targets, p)
		}
	}
	if master == nil {
		return nil, nil, nil, fmt.Errorf("unable to find master page for %s", qid)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Site < targets[j].Site })
	return master, targets, bad, nil
}

func (o *Orchestrator) loadTarget(ctx context.Context, page wiki.SitePage) (*Target, error) {
	site := o.Sites.Get(page.Domain)
	target := &Target{Page: page, Site: site}
	content, ts, err := site.FetchContent(ctx, page.Title)
	if err != nil {
		if errors.Is(err, mwapi.ErrNotFound) {
			return target, nil
		}
		return nil, err
	}
	magic, err := site.MagicWords(ctx)
	if err != nil {
		return nil, err
	}
	target.Content = content
	target.Timestamp = ts
	target.Exists = true
	target.Magic = magic
	return target, nil
}

func (o *Orchestrator) isRestricted(qid, site string) bool {
	for _, s := range o.Restrictions[qid] {
		if s == site {
			return true
		}
	}
	return false
}

func (o *Orchestrator) pace(ctx context.Context) error {
	if o.Pace <= 0 {
		return nil
	}
	sleep := o.Sleep
	if sleep == nil {
		sleep = func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}
	}
	return sleep(ctx, o.Pace)
}

func filterSites(pages []wiki.SitePage, allow []string) []wiki.SitePage {
	if len(allow) == 0 {
		return pages
	}
	allowed := make(map[string]bool, len(allow))
	for _, s := range allow {
		allowed[s] = true
	}
	var out []wiki.SitePage
	for _, p := range pages {
		if allowed[p.Site] {
			out = append(out, p)
		}
	}
	return out
}

func appendMissing(acc, names []string) []string {
	seen := make(map[string]bool, len(acc))
	for _, n := range acc {
		seen[n] = true
	}
	for _, n := range names {
		if !seen[n] {
			acc = append(acc, n)
		}
	}
	return acc
}
