// Package runtime provides the execution context for stageline commands.
//
// It encapsulates shared dependencies needed by actions, such as the engine,
// the change store, the logger and the loaded configuration.
package runtime
