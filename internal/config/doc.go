// Package config manages stageline configuration.
//
// It handles:
//   - The yaml configuration file in the repository's git directory
//   - Defaults for every setting
//   - STAGELINE_* environment overrides
//   - Validation of the loaded result
package config
