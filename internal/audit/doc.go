// Package audit writes an append-only JSONL trail of operator actions:
// who did what to which session, with what parameters, the outcome and
// how long it took. Files rotate through lumberjack.
package audit
