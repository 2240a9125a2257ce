// Package playbook defines the persistent data model for agent playbooks.
//
// A playbook is a named, versioned collection of bullets. Each bullet is a
// single behavioral rule (or anti-pattern) distilled from coding-agent
// sessions, carrying its full feedback history, a maturity level, and
// provenance back to the sessions that produced it.
//
// # Core Concepts
//
// Bullets are the unit of knowledge. Each bullet has:
//   - Content describing the rule or anti-pattern
//   - A scope (global, workspace, language, framework, task)
//   - An ordered list of feedback events, the single source of truth for
//     the cached helpful/harmful counters
//   - A maturity level (candidate -> established -> proven, or deprecated)
//
// Deltas are the only mutation vocabulary. Every change to a playbook is
// expressed as one of six delta variants (add, helpful, harmful, replace,
// deprecate, merge) and applied by the curation engine. The sole exception
// is RemoveBullet, an administrative hard delete.
//
// # Invariants
//
// Bullet IDs are unique within a playbook. Cached feedback counters always
// equal the counts derived from the event list. A deprecated bullet always
// has maturity "deprecated". Pinned bullets are never auto-deprecated or
// auto-pruned. Constructors validate these invariants and fail construction
// instead of silently defaulting.
package playbook
