//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package stats

import "time"

func processCPUTime() time.Duration { return 0 }
