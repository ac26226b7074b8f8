// Package bus wraps the D-Bus connection layer used by every nROS process.
// It hides the raw binding behind helpers for connecting to the nROS session
// bus or to a remote bus exposed over TCP, claiming node names, and listing
// the nodes present on a bus.
package bus

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"nros/internal/logging"
)

const (
	// NamePrefix namespaces every nROS node on the bus.
	NamePrefix = "org.nros."

	// NodeInterface exposes node introspection (Describe).
	NodeInterface = "org.nros.Node"

	// TopicInterface carries topic messages as D-Bus signals.
	TopicInterface = "org.nros.Topic"

	// ServiceInterface carries service calls as D-Bus methods.
	ServiceInterface = "org.nros.Service"

	// RootPath is the object path nROS nodes export their objects on.
	RootPath dbus.ObjectPath = "/"
)

// Conn is a connection to an nROS bus.
type Conn struct {
	conn    *dbus.Conn
	address string
	owned   []string
}

// sessionWait bounds how long Session waits for a bus daemon that is still
// writing its address file.
var sessionWait = 2 * time.Second

// Session connects to the nROS session bus: the address recorded by the nROS
// bus daemon if one is running, DBUS_SESSION_BUS_ADDRESS otherwise. When
// neither is available the address file is awaited briefly, so nodes launched
// right behind `nros bus start` do not lose the race with the daemon.
func Session(stateDir string) (*Conn, error) {
	if addr, err := SavedAddress(stateDir); err == nil && addr != "" {
		logging.BusDebug("connecting to nROS bus at %s", addr)
		return Connect(addr)
	}
	if addr := os.Getenv("DBUS_SESSION_BUS_ADDRESS"); addr != "" {
		return Connect(addr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sessionWait)
	defer cancel()
	if addr, err := WaitForAddress(ctx, stateDir); err == nil && addr != "" {
		logging.BusDebug("bus address appeared, connecting to %s", addr)
		return Connect(addr)
	}

	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	return &Conn{conn: conn}, nil
}

// Connect connects to the bus at the given D-Bus address.
func Connect(address string) (*Conn, error) {
	conn, err := dbus.Connect(address)
	if err != nil {
		return nil, fmt.Errorf("connect to bus %s: %w", address, err)
	}
	return &Conn{conn: conn, address: address}, nil
}

// Remote connects to a bus exposed by a remote host over TCP. The remote bus
// must allow anonymous clients, as buses started with a tcp_port do.
func Remote(host string, port int) (*Conn, error) {
	address := fmt.Sprintf("tcp:host=%s,port=%d", host, port)
	conn, err := dbus.Connect(address, dbus.WithAuth(dbus.AuthAnonymous()))
	if err != nil {
		return nil, fmt.Errorf("connect to remote bus %s:%d: %w", host, port, err)
	}
	return &Conn{conn: conn, address: address}, nil
}

// Raw exposes the underlying D-Bus connection.
func (c *Conn) Raw() *dbus.Conn { return c.conn }

// Address returns the bus address this connection was dialed with, if known.
func (c *Conn) Address() string { return c.address }

// RequestName claims the well-known name for the given node name. The name is
// namespaced and sanitized with BusName first.
func (c *Conn) RequestName(node string) (string, error) {
	name := BusName(node)
	reply, err := c.conn.RequestName(name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return "", fmt.Errorf("request name %s: %w", name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return "", fmt.Errorf("name %s already owned by another node", name)
	}
	c.owned = append(c.owned, name)
	logging.Bus("acquired bus name %s", name)
	return name, nil
}

// ReleaseName gives up a previously claimed node name.
func (c *Conn) ReleaseName(node string) error {
	name := BusName(node)
	if _, err := c.conn.ReleaseName(name); err != nil {
		return fmt.Errorf("release name %s: %w", name, err)
	}
	return nil
}

// Nodes lists the nROS nodes currently present on the bus, by node name.
func (c *Conn) Nodes(ctx context.Context) ([]string, error) {
	var names []string
	err := c.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names)
	if err != nil {
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	var nodes []string
	for _, n := range names {
		if strings.HasPrefix(n, NamePrefix) {
			nodes = append(nodes, strings.TrimPrefix(n, NamePrefix))
		}
	}
	sort.Strings(nodes)
	return nodes, nil
}

// NodeObject returns a proxy for the root object of the given node.
func (c *Conn) NodeObject(node string) dbus.BusObject {
	return c.conn.Object(BusName(node), RootPath)
}

// Close terminates the connection, releasing any names still owned.
func (c *Conn) Close() error {
	for _, name := range c.owned {
		_, _ = c.conn.ReleaseName(name)
	}
	c.owned = nil
	return c.conn.Close()
}

// BusName maps a node name to its well-known bus name. D-Bus name elements
// may only contain [A-Za-z0-9_-] and must not start with a digit, so anything
// else is mapped to '_'.
func BusName(node string) string {
	if strings.HasPrefix(node, NamePrefix) {
		node = strings.TrimPrefix(node, NamePrefix)
	}
	elems := strings.Split(node, ".")
	for i, e := range elems {
		elems[i] = sanitizeElement(e)
	}
	return NamePrefix + strings.Join(elems, ".")
}

// NodeName maps a well-known bus name back to the node name.
func NodeName(busName string) string {
	return strings.TrimPrefix(busName, NamePrefix)
}

func sanitizeElement(e string) string {
	if e == "" {
		return "_"
	}
	var b strings.Builder
	for i, r := range e {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '-':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
