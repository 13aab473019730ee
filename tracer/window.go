package tracer

import (
	"errors"
	"fmt"

	"github.com/chazu/uatu/pkg/bytecode"
)

// ErrNoLineStart means a line notification arrived at an offset that the
// code unit's line-start table does not know about.
var ErrNoLineStart = errors.New("offset is not a line start")

// ExtractError reports the offset that could not be matched.
type ExtractError struct {
	Offset int
	Err    error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract window at offset %d: %v", e.Offset, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Window is the slice of an instruction stream belonging to a single source
// line: [Start, End) of the unit's code. Code aliases the original stream
// and must not be modified.
type Window struct {
	Start int
	End   int
	Code  []byte
}

// Len returns the window size in bytes.
func (w Window) Len() int {
	return w.End - w.Start
}

// Extract returns the window for the line starting at offset. An offset of -1
// means nothing has executed yet and selects the whole stream.
func Extract(code []byte, lines []bytecode.LineStart, offset int) (Window, error) {
	if offset == -1 {
		return Window{Start: 0, End: len(code), Code: code[:len(code):len(code)]}, nil
	}

	for i, ls := range lines {
		if ls.Offset != offset {
			continue
		}
		end := len(code)
		if i+1 < len(lines) {
			end = lines[i+1].Offset
		}
		if offset > end || end > len(code) {
			break
		}
		return Window{Start: offset, End: end, Code: code[offset:end:end]}, nil
	}
	return Window{}, &ExtractError{Offset: offset, Err: ErrNoLineStart}
}
