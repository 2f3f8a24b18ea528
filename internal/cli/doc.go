// Package cli holds output helpers shared by the gadgethost commands.
//
// List commands accept -o table|plain|json|yaml. Table output uses rounded
// borders; plain output is borderless, padded columns suited to piping into
// grep, awk or cut. JSON and YAML serialize the underlying records rather
// than the rendered rows.
package cli
