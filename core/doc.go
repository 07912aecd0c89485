// Package core provides the foundational domain types of the execution kernel:
//
//   - Session (canonical, mergeable state threaded through a workflow run)
//   - SessionPatch / MergeSession (pure, deterministic merges)
//   - Adapter (projections between Session and consumer-owned aggregates)
//   - ToolCallRequest, Cost, Budget and the BudgetLedger used for admission
//   - Settlement (closed Fulfilled / Rejected / Skipped outcome union)
//   - The error taxonomy shared by the dispatcher and the spooler
//
// The package has no knowledge of hooks, executors or scheduling; those live
// in the hook, dispatch and spool packages which build on these types.
package core
