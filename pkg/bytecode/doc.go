// Package bytecode provides the traced host runtime: a small stack-based
// virtual machine whose frames report call, line and return events to an
// installable hook.
//
// The instruction encoding is deliberately simple so that instrumentation can
// read it directly:
//
//   - Opcodes below HaveArgument occupy one byte
//   - Opcodes at or above HaveArgument are followed by a two-byte
//     little-endian operand
//   - OpExtendedArg supplies the high 16 bits of the following operand
//
// # Code units
//
// A CodeUnit is one compiled body (a function or a module's top level). It
// carries its instruction bytes, its constant pool, its local slot names,
// its global names and a line-start table mapping the first instruction of
// each source line to the line number.
//
// # Tracing
//
// A Hook installed with VM.SetTrace sees every TraceCall. The Decision it
// returns picks the hook for that frame's TraceLine and TraceReturn events,
// stops tracing the frame, or aborts execution with an error. TraceLine fires
// before the first instruction of a line executes, with Frame.Offset set to
// that instruction. A frame that unwinds with a RuntimeError still reports
// TraceReturn, with a nil value.
//
// Clearing the hook with SetTrace(nil) silences every frame at once,
// including frames that are already running.
package bytecode
