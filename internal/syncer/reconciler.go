package syncer

import (
	"context"

	"github.com/nyurik/dibabel/internal/adapt"
	"github.com/nyurik/dibabel/internal/wiki"
)

// ContentAdapter rewrites master content for a target site.
// *adapt.Adapter implements it.
type ContentAdapter interface {
	Adapt(ctx context.Context, content string, isModule bool, targetSite string, magic wiki.MagicWords) (adapt.Result, error)
}

// Outcome is the result of reconciling one target against master history.
type Outcome struct {
	// Found reports whether the target's current content was located in
	// master history (directly, or after per-target adaptation).
	Found bool

	// Changes lists the master revisions the target is missing, newest
	// first. Empty with Found means the target already matches.
	Changes []wiki.Revision

	// Desired is the latest master revision adapted for the target; what a
	// publish would write. Valid only when HasDesired is set.
	Desired    string
	HasDesired bool

	// Missing and NonShared are the dependency diagnostics of the latest
	// revision's adaptation. Missing dependencies block publishing.
	Missing   []string
	NonShared []string
}

// Reconciler determines what, if anything, must be pushed to a target to
// bring it in sync with the master.
type Reconciler struct {
	Adapter ContentAdapter
}

// Reconcile walks the master's revisions from newest to oldest, adapting
// each for the target, until the target's current content is explained.
//
// The desired content and dependency diagnostics are captured from the
// newest revision only; older revisions are inspected purely to answer
// whether the target is merely behind or diverges for a content reason.
// A target matching the newest revision's unadapted content differs only by
// a dependency rename: that one revision becomes the change list.
// Missing dependencies on the newest revision stop the walk immediately,
// since no older adaptation is safe either.
func (r *Reconciler) Reconcile(ctx context.Context, m *Master, t *Target) (Outcome, error) {
	var out Outcome
	if !t.Exists {
		return out, nil
	}
	for i := 0; ; i++ {
		rev, ok, err := m.History.Rev(ctx, i)
		if err != nil {
			return out, err
		}
		if !ok {
			// History exhausted without a match.
			return out, nil
		}
		res, err := r.Adapter.Adapt(ctx, rev.Content, m.Page.IsModule(), t.Page.Site, t.Magic)
		if err != nil {
			return out, err
		}
		if i == 0 {
			out.Desired = res.Content
			out.HasDesired = true
			out.Missing = res.Missing
			out.NonShared = res.NonShared
			if res.Content == t.Content {
				out.Found = true
				return out, nil
			}
			if len(res.Missing) > 0 {
				out.Changes = append(out.Changes, rev)
				return out, nil
			}
			if rev.Content == t.Content {
				// Rename-only divergence.
				out.Found = true
				out.Changes = append(out.Changes, rev)
				return out, nil
			}
		} else if res.Content == t.Content || rev.Content == t.Content {
			out.Found = true
			return out, nil
		}
		out.Changes = append(out.Changes, rev)
	}
}
