// Package logx configures vakhtabot's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Level/sink changes applied at runtime without restarting
package logx
