package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/godbus/dbus/v5"

	"nros/internal/bus"
	"nros/internal/logging"
)

// D-Bus error names raised by the service layer.
const (
	ErrUnknownService = "org.nros.Error.UnknownService"
	ErrCallFailed     = "org.nros.Error.CallFailed"
)

// ServiceFunc handles one service call. Request and reply are opaque bytes,
// JSON by convention.
type ServiceFunc func(ctx context.Context, request []byte) ([]byte, error)

// Description is what a node reports about itself via Describe.
type Description struct {
	Name     string   `json:"name"`
	Topics   []string `json:"topics"`
	Services []string `json:"services"`
}

// ServiceHost exports a node's services and introspection data on the bus.
type ServiceHost struct {
	node string

	mu       sync.RWMutex
	services map[string]ServiceFunc
	topics   map[string]struct{}
}

// NewServiceHost creates an empty host for the named node.
func NewServiceHost(node string) *ServiceHost {
	return &ServiceHost{
		node:     node,
		services: make(map[string]ServiceFunc),
		topics:   make(map[string]struct{}),
	}
}

// Register adds (or replaces) a service.
func (h *ServiceHost) Register(name string, fn ServiceFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.services[name] = fn
}

// DeclareTopic records a topic this node publishes, for introspection.
func (h *ServiceHost) DeclareTopic(topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.topics[topic] = struct{}{}
}

// Description snapshots the host's registry.
func (h *ServiceHost) Description() Description {
	h.mu.RLock()
	defer h.mu.RUnlock()

	d := Description{Name: h.node}
	for t := range h.topics {
		d.Topics = append(d.Topics, t)
	}
	for s := range h.services {
		d.Services = append(d.Services, s)
	}
	sort.Strings(d.Topics)
	sort.Strings(d.Services)
	return d
}

// Export publishes the service and node interfaces on the connection's root
// object.
func (h *ServiceHost) Export(conn *bus.Conn) error {
	err := conn.Raw().ExportMethodTable(map[string]interface{}{
		"Call": h.call,
	}, bus.RootPath, bus.ServiceInterface)
	if err != nil {
		return fmt.Errorf("export service interface: %w", err)
	}
	err = conn.Raw().ExportMethodTable(map[string]interface{}{
		"Describe": h.describe,
	}, bus.RootPath, bus.NodeInterface)
	if err != nil {
		return fmt.Errorf("export node interface: %w", err)
	}
	return nil
}

func (h *ServiceHost) call(name string, request []byte) ([]byte, *dbus.Error) {
	h.mu.RLock()
	fn, ok := h.services[name]
	h.mu.RUnlock()
	if !ok {
		logging.Get(logging.CategoryService).Warn("%s: unknown service %q", h.node, name)
		return nil, dbus.NewError(ErrUnknownService, []interface{}{name})
	}

	timer := logging.StartTimer(logging.CategoryService, "call "+name)
	reply, err := fn(context.Background(), request)
	timer.Stop()
	if err != nil {
		logging.Get(logging.CategoryService).Error("%s: service %q failed: %v", h.node, name, err)
		return nil, dbus.NewError(ErrCallFailed, []interface{}{err.Error()})
	}
	return reply, nil
}

func (h *ServiceHost) describe() (string, *dbus.Error) {
	data, err := json.Marshal(h.Description())
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return string(data), nil
}

// Caller performs service calls against other nodes.
type Caller struct {
	conn *bus.Conn
}

// NewCaller returns a Caller bound to the given connection.
func NewCaller(conn *bus.Conn) *Caller {
	return &Caller{conn: conn}
}

// Call invokes a service on a node, honoring the context deadline.
func (c *Caller) Call(ctx context.Context, node, service string, request []byte) ([]byte, error) {
	obj := c.conn.NodeObject(node)
	var reply []byte
	err := obj.CallWithContext(ctx, bus.ServiceInterface+".Call", 0, service, request).Store(&reply)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", service, node, err)
	}
	logging.Service("called %s on %s (%d byte reply)", service, node, len(reply))
	return reply, nil
}

// Describe fetches a node's self-description.
func Describe(ctx context.Context, conn *bus.Conn, node string) (*Description, error) {
	obj := conn.NodeObject(node)
	var raw string
	err := obj.CallWithContext(ctx, bus.NodeInterface+".Describe", 0).Store(&raw)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", node, err)
	}
	var d Description
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("describe %s: bad payload: %w", node, err)
	}
	return &d, nil
}
