package item

import (
	"fmt"
	"runtime"
	"strings"
)

const maxFrames = 64

// FromPanic converts a recovered panic value into a critical trace item.
// skip is the number of caller frames to drop above FromPanic itself, so a
// deferred handler calling FromPanic directly passes 0.
func FromPanic(recovered any, skip int) Item {
	class := "panic(nil)"
	msg := ""
	switch v := recovered.(type) {
	case nil:
	case string:
		class = v
	case error:
		class = fmt.Sprintf("%T", v)
		msg = v.Error()
	case fmt.Stringer:
		class = v.String()
	default:
		class = fmt.Sprintf("%v", v)
	}

	it := Item{
		Level: LevelCritical,
		Trace: &Trace{
			Frames:    Callers(skip + 1),
			Exception: Exception{Class: class, Message: msg},
		},
		Language: "go",
	}
	return it
}

// FromError builds a trace item for err captured at the caller's stack
func FromError(level Level, err error, skip int) Item {
	class := "error(nil)"
	msg := ""
	if err != nil {
		class = fmt.Sprintf("%T", err)
		msg = err.Error()
	}
	return Item{
		Level: level,
		Trace: &Trace{
			Frames:    Callers(skip + 1),
			Exception: Exception{Class: class, Message: msg},
		},
		Language: "go",
	}
}

// Callers returns the calling goroutine's stack as frames, oldest call first,
// with Go runtime frames removed. skip 0 starts at the caller of Callers.
func Callers(skip int) []Frame {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return []Frame{}
	}

	var frames []Frame
	iter := runtime.CallersFrames(pcs[:n])
	for {
		f, more := iter.Next()
		if f.Function != "" && !strings.HasPrefix(f.Function, "runtime.") {
			line := f.Line
			frames = append(frames, Frame{
				Filename: f.File,
				Lineno:   &line,
				Method:   f.Function,
			})
		}
		if !more {
			break
		}
	}

	// collectors expect the most recent call last
	for l, r := 0, len(frames)-1; l < r; l, r = l+1, r-1 {
		frames[l], frames[r] = frames[r], frames[l]
	}
	if frames == nil {
		frames = []Frame{}
	}
	return frames
}
