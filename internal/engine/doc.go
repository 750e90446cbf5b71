// Package engine expands a preset into a prompt fragment.
//
// An expansion walks the preset's categories in order. Each node is first
// checked against the generation context (scope and gender), then gated by
// one probability roll, then its children are sampled by weight. Chosen
// groups recurse; chosen tags contribute their text. Emphasis brackets are
// applied post-order and `__name__` variables are resolved over the
// assembled text.
//
// Every decision is appended to a Trace. Problems found while sampling
// (reference cycles, variable cycles, unresolved variables, unavailable
// pools) are recorded in the trace and never abort the expansion; only an
// invalid preset or context is returned as an error.
//
// Randomness comes from a seeded SplitMix64 stream owned by the call, so the
// same preset, context and seed always produce the same Result.
package engine
