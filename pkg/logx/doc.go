// Package logx configures tgrelay's structured logging.
//
// The relay uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional Telegram sink for warnings (min-level + rate limiting)
//
// Components tag their records with a "comp" field via Logger.With.
package logx
