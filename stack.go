package guard

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// StackTrace is a captured call stack, optionally linked to the stack of the goroutine that
// started it.
//
// Workers record the stack of the harness that launched them as their Parent, so a recovered
// panic shows both where it happened and where the worker came from.
type StackTrace struct {
	Frames []StackFrame
	Parent *StackTrace
}

// StackFrame is a single entry in a [StackTrace].
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// CaptureStack returns the stack of the calling goroutine, skipping the innermost skip frames
// above the caller. skip = 0 starts at the function that called CaptureStack.
func CaptureStack(parent *StackTrace, skip uint) StackTrace {
	return StackTrace{Frames: callerFrames(skip + 1), Parent: parent}
}

// String formats the trace in a layout close to the runtime's own panic output, followed by the
// frames of each parent in turn.
func (st StackTrace) String() string {
	var sb strings.Builder

	for cur := &st; cur != nil; cur = cur.Parent {
		if len(cur.Frames) == 0 {
			sb.WriteString("<empty stack>\n")
			continue
		}
		for _, f := range cur.Frames {
			f.writeTo(&sb)
		}
	}

	return sb.String()
}

func (f StackFrame) writeTo(sb *strings.Builder) {
	if f.Function == "" {
		sb.WriteString("<unknown function>")
	} else {
		sb.WriteString(f.Function)
		sb.WriteString("(...)")
	}
	sb.WriteString("\n\t")

	if f.File == "" {
		sb.WriteString("<unknown file>")
	} else {
		sb.WriteString(f.File)
		if f.Line != 0 {
			sb.WriteByte(':')
			sb.WriteString(strconv.Itoa(f.Line))
		}
	}
	sb.WriteByte('\n')
}

var pcPool = sync.Pool{
	New: func() any {
		buf := make([]uintptr, 64)
		return &buf
	},
}

// callerFrames collects frames starting skip levels above its caller.
func callerFrames(skip uint) []StackFrame {
	skip += 2 // callerFrames itself, and runtime.Callers

	bufp := pcPool.Get().(*[]uintptr)
	defer func() {
		// don't hold on to unusually deep buffers
		if len(*bufp) <= 1024 {
			pcPool.Put(bufp)
		}
	}()

	var pcs []uintptr
	for {
		n := runtime.Callers(int(skip), *bufp)
		if n < len(*bufp) {
			pcs = (*bufp)[:n]
			break
		}
		*bufp = make([]uintptr, 2*len(*bufp))
	}

	if len(pcs) == 0 {
		return nil
	}

	var frames []StackFrame
	iter := runtime.CallersFrames(pcs)
	for {
		frame, more := iter.Next()
		frames = append(frames, StackFrame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more {
			break
		}
	}

	return frames
}
