// Package task defines the canonical task model shared across the pipeline:
// lifecycle statuses, pipeline stages, the subtitle-bearing Task record, and
// the transition rules that guard every status change.
package task
