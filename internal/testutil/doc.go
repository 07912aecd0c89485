// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing sessions and tool calls and when
// asserting how often a backend was invoked. They are not intended for
// production usage.
package testutil
