// Package media defines the domain entities the registry persists: media
// items, jobs, enrichment artifacts, plans and renders, together with their
// status lattices and normalization helpers.
package media
