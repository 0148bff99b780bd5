// Package wiki holds the shared page-addressing and revision types.
//
// A page is addressed as https://<site>/wiki/<title>. The site identifier
// embeds language and project as subdomain and domain segments; the literal
// subdomain "www" means the site has no language variant and is identified
// by its bare project name (e.g. "mediawiki").
//
// Titles are percent-decoded and underscore-normalized exactly once, at
// construction. Everything downstream works with space-separated titles and
// re-encodes only when building URLs.
package wiki
