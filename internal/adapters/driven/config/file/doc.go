// Package file provides file-based implementations of driven port interfaces.
//
// Adapters:
//   - ConfigStore: TOML-based configuration storage with SUGGEST_* environment
//     overrides loaded through godotenv
package file
