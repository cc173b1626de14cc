package nscache

/*
nscache is an in-memory cache of namespace ownership. Roots are registered by an owner for a lifetime measured in
block heights, and may carry one or two levels of descendant namespaces. Every root keeps a history of versions: a
renewal pushes a new version on top, and only the topmost version of a root decides which descendants are visible.

Readers take consistent snapshots (views) of the committed state while a single writer builds a delta on top of it.
Committing a delta promotes the writer's reader lock to a writer lock, swaps the committed state and demotes again, so
readers are never exposed to a half-applied block.

The `nscache` module is organized into the following packages:

* `state`: value types for namespaces, owners, lifetimes and root histories, plus the error codes of the cache.
* `cache`: the namespace cache, its views and deltas, the background pruner and prometheus metrics.
* `observers`: dispatch of block notifications (registrations, heights) to the handlers that mutate a delta.
* `config`: toml configuration for the cache and the stress harness, and logger setup.
* `stress`: a harness racing readers against a writer that applies generated blocks.
* `util/spinlock`: the promotable spin reader-writer lock that guards the committed state.
* `util/worker`: a named background worker draining a task channel.
* `cmd/nscache-stress`: command line entry point for the stress harness.
*/
