// Package config provides the configuration value consumed by the engine.
//
// The command layer parses flags and optional config files into a Config;
// the core never looks at argv or process-wide state. Each section is handed
// to the component that owns it:
//
//	cfg := config.DefaultConfig()
//	loaded, err := config.LoadConfig("obfusengine.yaml")
//	cfg.Merge(loaded)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//
// # Merging
//
// Merge follows one rule per field type:
//
//   - Strings: merge if source is non-empty
//   - Integers and durations: merge if source is greater than zero
//   - Slices and maps: merge if source is non-empty
//   - Pointers: merge if source is non-nil
//   - Plain booleans: merge if source is true
//
// Booleans whose default is true use a pointer field with a "Nil" suffix and
// an accessor without it (OutputConfig.ClipboardNil / Clipboard()), so a file
// that omits the key does not switch the feature off.
//
// # File formats
//
// LoadConfig reads JSON, or YAML when the file ends in .yaml or .yml.
// Durations are written as Go duration strings ("90s", "2m") in both.
package config
