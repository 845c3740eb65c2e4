package rpc

import (
	"sync"

	"google.golang.org/grpc"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/log"
)

// ChannelPool caches one gRPC connection per worker endpoint. Connections
// are long-lived and only closed when the owning worker is stopped.
type ChannelPool struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewChannelPool creates an empty pool
func NewChannelPool() *ChannelPool {
	return &ChannelPool{conns: make(map[string]*grpc.ClientConn)}
}

// GetOrCreate returns the cached connection for endpoint, dialing if needed.
// Get-or-create is atomic: two concurrent callers observe the same connection.
func (p *ChannelPool) GetOrCreate(endpoint string) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[endpoint]; ok {
		return conn, nil
	}

	conn, err := Dial(endpoint)
	if err != nil {
		return nil, err
	}
	p.conns[endpoint] = conn

	logger := log.WithComponent("channel-pool")
	logger.Debug().
		Str("endpoint", endpoint).
		Msg("created worker channel")
	return conn, nil
}

// Remove closes and forgets the connection for endpoint. No-op when absent.
func (p *ChannelPool) Remove(endpoint string) {
	p.mu.Lock()
	conn, ok := p.conns[endpoint]
	delete(p.conns, endpoint)
	p.mu.Unlock()

	if ok {
		conn.Close()
	}
}

// CloseAll closes every pooled connection
func (p *ChannelPool) CloseAll() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*grpc.ClientConn)
	p.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

// Size returns the number of pooled connections
func (p *ChannelPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}
