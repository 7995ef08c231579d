// Package actions provides the operations behind stageline's CLI commands and HTTP routes.
//
// Each operation is a parameter struct with validate tags. Execute validates it,
// dispatches it to the engine and returns a Result both adapters can render.
//
// Key patterns:
//   - Operations accept runtime.Context which provides the Engine, Splog and actor
//   - Operations are stateless; all state lives in git refs and the change store
//   - The Operation interface is closed: only this package implements it
package actions
