// Package feed keeps the per-author address registry and rebuilds the merged timeline of
// followed identities from the content-addressed store. Nothing fetched is trusted: every
// post is decoded, matched against the author it was recorded under and verified before it
// reaches a timeline.
package feed
