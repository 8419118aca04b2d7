// Package prompts contains the LLM prompt templates Envoy sends to models.
//
// Prompt text is Go code rather than config files because it is program
// logic: templates use fmt.Sprintf interpolation and can be validated by
// tests. Persona content comes from the documents named in config.yaml;
// this package only frames it.
//
// Convention: each prompt category gets its own file (system.go,
// revision.go, evaluator.go) with an exported function that accepts the
// dynamic parts and returns the fully interpolated prompt string.
package prompts
