// Package adapt rewrites a master page's raw markup so that every reference
// to a shared dependency uses the target site's local naming, leaving
// everything else character-for-character identical.
//
// Page content is treated as an opaque string. The two reference syntaxes
// (template transclusion, module require/loadData) are extracted with
// deliberately conservative lexical patterns; this is an explicit lexical
// scan, not a markup parser.
package adapt

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/nyurik/dibabel/internal/resolve"
	"github.com/nyurik/dibabel/internal/wiki"
)

// templateNamespace prefixes captured template names to form their
// canonical source-site title.
const templateNamespace = "Template:"

// reTemplate captures a transclusion name. The brace run is captured so the
// match can be rejected unless it is exactly two braces: three braces are
// template-parameter placeholders. The name class excludes characters that
// would indicate parser functions or nested syntax.
var reTemplate = regexp.MustCompile(`(\{+)\s*([^{}|<>&#:\n]*?)\s*([|}])`)

// reModule captures require('Name') / mw.loadData('Name') calls with either
// quote style. Quote agreement is checked after matching.
var reModule = regexp.MustCompile(`(require|mw\.loadData)\s*\(\s*(['"])([^'"()\n]+)(['"])\s*\)`)

// builtinModules are well-known Scribunto built-ins that are never
// cross-site resolved.
var builtinModules = map[string]bool{
	"strict":      true,
	"libraryUtil": true,
}

// Result is the outcome of one adaptation.
type Result struct {
	// Content is the adapted text.
	Content string

	// Missing lists canonical dependency names with no localized
	// equivalent on the target site.
	Missing []string

	// NonShared lists canonical dependency names known to not be
	// cross-site shared.
	NonShared []string
}

// Adapter rewrites content for target sites using the run's dependency
// cache, resolving unknown names on demand.
type Adapter struct {
	resolver *resolve.Resolver
}

// New creates an adapter over the given resolver.
func New(resolver *resolve.Resolver) *Adapter {
	return &Adapter{resolver: resolver}
}

// Adapt rewrites content for the target site. isModule selects the module
// reference syntax; magic is the target site's reserved keyword set,
// consulted so magic words that merely resemble transclusions are left
// alone. Pure apart from growth of the shared dependency cache.
func (a *Adapter) Adapt(ctx context.Context, content string, isModule bool, targetSite string, magic wiki.MagicWords) (Result, error) {
	if isModule {
		return a.adaptModule(ctx, content, targetSite)
	}
	return a.adaptWikitext(ctx, content, targetSite, magic)
}

func (a *Adapter) adaptWikitext(ctx context.Context, content, targetSite string, magic wiki.MagicWords) (Result, error) {
	type ref struct {
		start, end int // byte range of the bare name
		name       string
	}
	var refs []ref
	var canonical []string
	for _, m := range reTemplate.FindAllStringSubmatchIndex(content, -1) {
		if m[3]-m[2] != 2 {
			continue // not exactly two open braces
		}
		name := content[m[4]:m[5]]
		if name == "" {
			continue
		}
		refs = append(refs, ref{start: m[4], end: m[5], name: name})
		canonical = append(canonical, templateNamespace+name)
	}
	if err := a.resolver.EnsureResolved(ctx, canonical); err != nil {
		return Result{}, err
	}

	cache := a.resolver.Cache()
	missing := map[string]bool{}
	nonShared := map[string]bool{}
	var b strings.Builder
	last := 0
	for _, r := range refs {
		if magic.Matches(r.name) {
			continue // reserved keyword, not a template reference
		}
		key := templateNamespace + r.name
		entry, ok := cache.Get(key)
		switch {
		case !ok:
			missing[key] = true
		case entry.NotShared:
			nonShared[key] = true
		default:
			loc, found := entry.Localized(targetSite)
			if !found {
				missing[key] = true
				continue
			}
			b.WriteString(content[last:r.start])
			b.WriteString(stripNamespace(loc))
			last = r.end
		}
	}
	b.WriteString(content[last:])
	return Result{Content: b.String(), Missing: sortedKeys(missing), NonShared: sortedKeys(nonShared)}, nil
}

func (a *Adapter) adaptModule(ctx context.Context, content, targetSite string) (Result, error) {
	type ref struct {
		start, end int // byte range of the quoted literal, quotes included
		name       string
		quote      byte
	}
	var refs []ref
	var canonical []string
	for _, m := range reModule.FindAllStringSubmatchIndex(content, -1) {
		open, closing := content[m[4]:m[5]], content[m[8]:m[9]]
		if open != closing {
			continue
		}
		name := content[m[6]:m[7]]
		if builtinModules[name] {
			continue
		}
		refs = append(refs, ref{start: m[4], end: m[9], name: name, quote: open[0]})
		canonical = append(canonical, name)
	}
	if err := a.resolver.EnsureResolved(ctx, canonical); err != nil {
		return Result{}, err
	}

	cache := a.resolver.Cache()
	missing := map[string]bool{}
	nonShared := map[string]bool{}
	var b strings.Builder
	last := 0
	for _, r := range refs {
		entry, ok := cache.Get(r.name)
		switch {
		case !ok:
			missing[r.name] = true
		case entry.NotShared:
			nonShared[r.name] = true
		default:
			loc, found := entry.Localized(targetSite)
			if !found {
				missing[r.name] = true
				continue
			}
			b.WriteString(content[last:r.start])
			b.WriteString(quoteLiteral(loc, r.quote))
			last = r.end
		}
	}
	b.WriteString(content[last:])
	return Result{Content: b.String(), Missing: sortedKeys(missing), NonShared: sortedKeys(nonShared)}, nil
}

// quoteLiteral renders name as a Lua string literal, preserving the original
// quote character when possible, switching to the other one when the name
// contains it, and escaping when the name contains both.
func quoteLiteral(name string, quote byte) string {
	other := byte('"')
	if quote == '"' {
		other = '\''
	}
	switch {
	case !strings.ContainsRune(name, rune(quote)):
		return string(quote) + name + string(quote)
	case !strings.ContainsRune(name, rune(other)):
		return string(other) + name + string(other)
	default:
		escaped := strings.ReplaceAll(name, string(quote), `\`+string(quote))
		return string(quote) + escaped + string(quote)
	}
}

// stripNamespace drops the localized namespace prefix from a full title,
// leaving the bare transclusion name.
func stripNamespace(title string) string {
	if i := strings.IndexByte(title, ':'); i >= 0 {
		return title[i+1:]
	}
	return title
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
