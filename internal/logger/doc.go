// Package logger wraps zap for the update daemon and its CLI:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and a per-core level option,
//   - a plain file logger used as the update console transcript.
//
// Services accept a context and extract the logger from it, so every target
// update logs with its target name attached.
package logger
