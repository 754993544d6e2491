package window

import (
	"sync"

	"github.com/shirou/gopsutil/v3/process"
)

// processNames caches pid -> executable name lookups for the lifetime of a
// backend. PIDs are reused by the OS, so entries are keyed by pid and
// create time.
type processNames struct {
	mu    sync.Mutex
	cache map[processKey]string
}

type processKey struct {
	pid     int32
	created int64
}

func newProcessNames() *processNames {
	return &processNames{cache: make(map[processKey]string)}
}

// lookup returns the executable name for pid, or "" if it cannot be read.
func (p *processNames) lookup(pid int) string {
	if pid <= 0 {
		return ""
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return ""
	}
	created, _ := proc.CreateTime()
	key := processKey{pid: int32(pid), created: created}

	p.mu.Lock()
	name, ok := p.cache[key]
	p.mu.Unlock()
	if ok {
		return name
	}

	name, err = proc.Name()
	if err != nil {
		return ""
	}

	p.mu.Lock()
	p.cache[key] = name
	p.mu.Unlock()
	return name
}
