// Package utils provides shared utility functions.
//
// These utilities are used by the command line and include:
//   - Reading message text from standard input
package utils
