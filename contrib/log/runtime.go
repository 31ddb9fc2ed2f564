package log

import (
	"os"
	"time"
)

func timeNow() time.Time { return time.Now() }

func realOsExit(code int) { os.Exit(code) }
