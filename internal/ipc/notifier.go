package ipc

import (
	"context"
	"sync"

	"github.com/creachadair/jrpc2"

	"github.com/rpatcher/rpatcher/pkg/logger"
)

// notifier maintains the set of connected jrpc2 servers (one per accepted
// connection) and broadcasts a push notification to all of them whenever a
// Status arrives from the Controller. Grounded on the teacher's
// RPCNotifier (internal/server/rpc_notify.go), generalized from per-download
// GID events to a single "patcher.status" stream.
type notifier struct {
	mu      sync.RWMutex
	servers map[*jrpc2.Server]struct{}
	log     logger.Logger
}

func newNotifier(log logger.Logger) *notifier {
	return &notifier{servers: make(map[*jrpc2.Server]struct{}), log: log}
}

func (n *notifier) register(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.servers[srv] = struct{}{}
}

func (n *notifier) unregister(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.servers, srv)
}

func (n *notifier) broadcast(method string, params any) {
	n.mu.RLock()
	servers := make([]*jrpc2.Server, 0, len(n.servers))
	for srv := range n.servers {
		servers = append(servers, srv)
	}
	n.mu.RUnlock()

	var dead []*jrpc2.Server
	for _, srv := range servers {
		if err := srv.Notify(context.Background(), method, params); err != nil {
			n.log.Warning("ipc: push notification failed: %v", err)
			dead = append(dead, srv)
		}
	}

	if len(dead) > 0 {
		n.mu.Lock()
		for _, srv := range dead {
			delete(n.servers, srv)
		}
		n.mu.Unlock()
	}
}

func (n *notifier) count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.servers)
}
