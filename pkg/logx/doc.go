// Package logx configures haccpkit's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional notice sink (min-level + rate limiting) that forwards records
//     to a UI callback, e.g. to show a toast when the client drops to mock mode
package logx
