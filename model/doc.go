// Package model defines the provider-agnostic completion abstraction used to
// run model-backed tools and sub-agents through the dispatcher.
//
// Providers (model/anthropic, model/openai) implement Completer so the kernel
// stays decoupled from vendor SDKs. NewToolExecutor exposes a set of
// completers as a dispatch executor; each completer is addressed by tool name.
//
// Responses report actual token usage. The dispatcher charges estimated costs
// up front; Usage is what callers reconcile against afterwards.
package model
