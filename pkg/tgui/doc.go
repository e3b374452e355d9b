// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders
//   - Callback data helpers (area:action:payload)
//   - A simple, safe message builder with sensible defaults
//
// It depends on the transport kit types only for send options, so the
// bot's menu code stays testable without a live Telegram connection.
package tgui
