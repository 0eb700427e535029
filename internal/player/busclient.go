package player

import (
	"context"

	"github.com/godbus/dbus/v5"
)

// BusClient defines the D-Bus operations the player backends need.
// This abstraction allows us to mock D-Bus interactions in tests.
//
//go:generate mockgen -destination=mocks/busclient_mock.go -package=mocks github.com/lpetrelli/autopause/internal/player BusClient
type BusClient interface {
	// Close closes the D-Bus connection
	Close() error

	// NameHasOwner reports whether a well-known name currently has an owner
	NameHasOwner(name string) (bool, error)

	// ListNames returns all names on the bus
	ListNames() ([]string, error)

	// GetProperty retrieves a property from a D-Bus object
	// dest: the bus name (e.g. "org.mpris.MediaPlayer2.spotify")
	// path: the object path (e.g. "/org/mpris/MediaPlayer2")
	// prop: the property name (e.g. "org.mpris.MediaPlayer2.Player.PlaybackStatus")
	GetProperty(dest, path, prop string) (dbus.Variant, error)

	// Call invokes a method on a D-Bus object, discarding any return value
	Call(ctx context.Context, dest, path, method string, args ...interface{}) error
}

// StdBusClient is the real implementation using godbus
type StdBusClient struct {
	conn *dbus.Conn
}

// NewStdBusClient creates a real D-Bus client connected to the session bus
func NewStdBusClient() (*StdBusClient, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}
	return &StdBusClient{conn: conn}, nil
}

// Close closes the D-Bus connection
func (c *StdBusClient) Close() error {
	return c.conn.Close()
}

// NameHasOwner reports whether a well-known name currently has an owner
func (c *StdBusClient) NameHasOwner(name string) (bool, error) {
	var owned bool
	err := c.conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, name).Store(&owned)
	return owned, err
}

// ListNames returns all names on the bus
func (c *StdBusClient) ListNames() ([]string, error) {
	var names []string
	err := c.conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names)
	return names, err
}

// GetProperty retrieves a property from a D-Bus object
func (c *StdBusClient) GetProperty(dest, path, prop string) (dbus.Variant, error) {
	obj := c.conn.Object(dest, dbus.ObjectPath(path))
	return obj.GetProperty(prop)
}

// Call invokes a method on a D-Bus object, discarding any return value
func (c *StdBusClient) Call(ctx context.Context, dest, path, method string, args ...interface{}) error {
	obj := c.conn.Object(dest, dbus.ObjectPath(path))
	return obj.CallWithContext(ctx, method, 0, args...).Err
}
