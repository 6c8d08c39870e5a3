package adaptive

import (
	"strings"
	"sync"

	"github.com/cloud-shuttle/wsrpc/transport"
)

// Builder constructs a transport.Transport for a given configuration. Each
// wire variant registers a Builder under its transport.Name, mirroring the
// teacher's balancer-builder registry but keyed by transport capability
// instead of load-balancing policy name.
type Builder interface {
	Build(cfg transport.Config) transport.Transport
	Name() transport.Name
}

var (
	mu sync.Mutex
	m  = make(map[transport.Name]Builder)
)

// Register registers b under its Name, lowercased. Last registration for a
// given name wins. Intended to be called from variant package init()s or
// explicitly during client construction.
func Register(b Builder) {
	mu.Lock()
	defer mu.Unlock()
	m[transport.Name(strings.ToLower(string(b.Name())))] = b
}

// Get returns the Builder registered under name, or nil if none.
func Get(name transport.Name) Builder {
	mu.Lock()
	defer mu.Unlock()
	return m[transport.Name(strings.ToLower(string(name)))]
}
