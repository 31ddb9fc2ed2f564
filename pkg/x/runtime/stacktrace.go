package runtime

import (
	"fmt"
	"runtime"
	"strings"
)

// PrintStackTrace renders the current goroutine's call stack as a
// multi-line string, skipping the first skip frames (typically the
// recover handler itself and the runtime frames beneath it).
func PrintStackTrace(skip int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&sb, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return sb.String()
}
