// Package prompts contains all LLM prompt templates used by Coldwatch.
//
// Templates live here, not inline at call sites, so the full set of
// model-facing instructions can be reviewed in one place. Builder
// functions interpolate runtime values (the data clock, gathered data,
// the selected idea) into the templates.
package prompts
