package manager

import (
	"sync"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/metrics"
)

// PortPool hands out RPC listen ports for worker processes from a fixed
// range. Allocation scans from the bottom so released ports are reused
// before the range is extended upward.
type PortPool struct {
	mu    sync.Mutex
	min   int
	max   int
	inUse map[int]bool
}

// NewPortPool creates a pool over [min, max] inclusive
func NewPortPool(min, max int) *PortPool {
	return &PortPool{
		min:   min,
		max:   max,
		inUse: make(map[int]bool),
	}
}

// Allocate reserves the lowest free port, or fails with PortsExhausted
func (p *PortPool) Allocate() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for port := p.min; port <= p.max; port++ {
		if !p.inUse[port] {
			p.inUse[port] = true
			metrics.PortsInUse.Set(float64(len(p.inUse)))
			return port, nil
		}
	}
	return 0, errdefs.New(errdefs.KindPortsExhausted,
		"no free worker ports in range %d-%d", p.min, p.max)
}

// Release returns a port to the pool. Releasing a free port is a no-op.
func (p *PortPool) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inUse, port)
	metrics.PortsInUse.Set(float64(len(p.inUse)))
}

// InUse reports how many ports are currently allocated
func (p *PortPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}
