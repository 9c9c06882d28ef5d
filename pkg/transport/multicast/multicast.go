// Package multicast opens the UDP socket topic announcements travel on.
package multicast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"go.uber.org/multierr"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"tarun-kavipurapu/p2p-send/pkg/logger"
)

var (
	ErrNotMulticast = errors.New("not a multicast address")
	ErrInvalidPort  = errors.New("invalid port")
	ErrNoInterface  = errors.New("no multicast capable interface")
)

const DefaultTTL = 4

// Options select the group, port and interface to listen on.
type Options struct {
	Group string
	Port  int
	// Interface restricts the group membership to one interface by name.
	// Empty picks the first usable interface, falling back to all of them.
	Interface string
	TTL       int
	// Loopback delivers our own announcements to other sockets on this host.
	Loopback bool
}

// ResolveGroup validates group and port and returns the destination address.
func ResolveGroup(group string, port int) (*net.UDPAddr, error) {
	if port <= 0 || port > 0xffff {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	ip := net.ParseIP(group)
	if ip == nil || !ip.IsMulticast() {
		return nil, fmt.Errorf("%w: %q", ErrNotMulticast, group)
	}
	return &net.UDPAddr{IP: ip, Port: port}, nil
}

// Conn is a UDP socket joined to a multicast group. It implements net.PacketConn;
// WriteTo(b, c.Group()) announces to every member.
type Conn struct {
	*net.UDPConn
	group  *net.UDPAddr
	p4     *ipv4.PacketConn
	p6     *ipv6.PacketConn
	joined []*net.Interface
}

// Listen binds the group port with address reuse and joins the group.
func Listen(opts Options) (*Conn, error) {
	group, err := ResolveGroup(opts.Group, opts.Port)
	if err != nil {
		return nil, err
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	network := "udp4"
	if group.IP.To4() == nil {
		network = "udp6"
	}
	lc := net.ListenConfig{Control: reuseControl}
	pc, err := lc.ListenPacket(context.Background(), network, net.JoinHostPort("", strconv.Itoa(opts.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s port %d: %w", network, opts.Port, err)
	}
	c := &Conn{UDPConn: pc.(*net.UDPConn), group: group}

	ifaces, err := candidates(opts.Interface)
	if err != nil {
		c.UDPConn.Close()
		return nil, err
	}
	if network == "udp4" {
		c.p4 = ipv4.NewPacketConn(c.UDPConn)
	} else {
		c.p6 = ipv6.NewPacketConn(c.UDPConn)
	}
	for _, iface := range ifaces {
		if err := c.join(iface); err != nil {
			logger.Sugar.Debugf("[Multicast] join %s on %s failed: %v", group.IP, iface.Name, err)
			continue
		}
		c.joined = append(c.joined, iface)
	}
	if len(c.joined) == 0 {
		c.UDPConn.Close()
		return nil, fmt.Errorf("%w: could not join %s", ErrNoInterface, group.IP)
	}

	if err := c.configure(c.joined[0], opts.TTL, opts.Loopback); err != nil {
		c.Close()
		return nil, err
	}
	logger.Sugar.Infof("[Multicast] joined %s on %d interface(s), first %s", group, len(c.joined), c.joined[0].Name)
	return c, nil
}

func (c *Conn) join(iface *net.Interface) error {
	g := &net.UDPAddr{IP: c.group.IP}
	if c.p4 != nil {
		return c.p4.JoinGroup(iface, g)
	}
	return c.p6.JoinGroup(iface, g)
}

// configure sets the outgoing interface, hop limit and loopback.
func (c *Conn) configure(iface *net.Interface, ttl int, loopback bool) error {
	var err error
	if c.p4 != nil {
		err = multierr.Combine(
			c.p4.SetMulticastInterface(iface),
			c.p4.SetMulticastTTL(ttl),
			c.p4.SetMulticastLoopback(loopback),
		)
	} else {
		err = multierr.Combine(
			c.p6.SetMulticastInterface(iface),
			c.p6.SetMulticastHopLimit(ttl),
			c.p6.SetMulticastLoopback(loopback),
		)
	}
	if err != nil {
		return fmt.Errorf("failed to configure multicast socket: %w", err)
	}
	return nil
}

// Group is the address announcements are sent to.
func (c *Conn) Group() *net.UDPAddr {
	return c.group
}

// Interfaces lists the interfaces the group was joined on.
func (c *Conn) Interfaces() []string {
	names := make([]string, 0, len(c.joined))
	for _, iface := range c.joined {
		names = append(names, iface.Name)
	}
	return names
}

// Close leaves the group and closes the socket.
func (c *Conn) Close() error {
	var err error
	g := &net.UDPAddr{IP: c.group.IP}
	for _, iface := range c.joined {
		if c.p4 != nil {
			err = multierr.Append(err, c.p4.LeaveGroup(iface, g))
		} else {
			err = multierr.Append(err, c.p6.LeaveGroup(iface, g))
		}
	}
	c.joined = nil
	if cerr := c.UDPConn.Close(); cerr != nil {
		return cerr
	}
	if err != nil {
		logger.Sugar.Debugf("[Multicast] leave group: %v", err)
	}
	return nil
}

// candidates returns the interfaces to join on.
func candidates(name string) ([]*net.Interface, error) {
	if name != "" {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNoInterface, name, err)
		}
		return []*net.Interface{iface}, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	if best := bestInterface(ifaces); best != nil {
		// loopback last so a host without a LAN still works
		out := []*net.Interface{best}
		for i := range ifaces {
			if ifaces[i].Flags&net.FlagLoopback != 0 && ifaces[i].Flags&net.FlagUp != 0 {
				out = append(out, &ifaces[i])
			}
		}
		return out, nil
	}

	var out []*net.Interface
	for i := range ifaces {
		if ifaces[i].Flags&net.FlagUp == 0 {
			continue
		}
		out = append(out, &ifaces[i])
	}
	if len(out) == 0 {
		return nil, ErrNoInterface
	}
	return out, nil
}

// bestInterface is the first up, non-loopback, multicast capable interface with an address.
func bestInterface(ifaces []net.Interface) *net.Interface {
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		for _, addr := range addrs {
			if _, ok := addr.(*net.IPNet); ok {
				return iface
			}
		}
	}
	return nil
}
