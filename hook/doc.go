// Package hook implements the policy interception layer around tool calls.
//
// Handlers are registered per Phase with an optional Matcher and run
// sequentially in registration order. Each handler returns a Decision:
//
//   - Allow: continue with the next handler
//   - Deny: stop immediately, the call is rejected
//   - Mutate: replace the call input (BeforeCall) or output (AfterCall)
//
// Handler failures fail closed as Deny. Every decision is kept in the
// registry's audit log and emitted as a hook.decision telemetry event.
package hook
