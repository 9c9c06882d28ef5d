package peer

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"tarun-kavipurapu/p2p-send/pkg/content"
	"tarun-kavipurapu/p2p-send/pkg/protocol"
)

const (
	DefaultDialTimeout = 5 * time.Second
	DefaultIDCacheSize = 1 << 20
)

// Config holds the settings of one Controller and of the socket it announces on.
type Config struct {
	// Group is the multicast group address; empty picks the default for IPv6 or IPv4.
	Group     string
	IPv6      bool
	Port      int
	Interface string

	DownloadPath string
	PieceSize    int
	FileHash     protocol.HashKind
	PieceHash    protocol.HashKind

	// DialTimeout bounds connecting to a publisher and every later read or write
	// on a transfer connection.
	DialTimeout time.Duration
	IDCacheSize int
	Workers     int
	// MetricsInterval enables a periodic metrics log line when positive.
	MetricsInterval time.Duration

	// OnText receives every completed text download. Nil logs it instead.
	OnText func(topic, text string)
}

func DefaultConfig() Config {
	return Config{
		Port:         protocol.DefaultPort,
		DownloadPath: ".",
		PieceSize:    protocol.DefaultPieceSize,
		FileHash:     protocol.DefaultHashKind,
		PieceHash:    protocol.DefaultHashKind,
		DialTimeout:  DefaultDialTimeout,
		IDCacheSize:  DefaultIDCacheSize,
	}
}

// GroupAddress returns Group or the default group for the address family.
func (c Config) GroupAddress() string {
	if c.Group != "" {
		return c.Group
	}
	if c.IPv6 {
		return protocol.DefaultMulticastIPv6
	}
	return protocol.DefaultMulticastIPv4
}

// GroupHostPort is GroupAddress joined with Port.
func (c Config) GroupHostPort() string {
	return net.JoinHostPort(c.GroupAddress(), strconv.Itoa(c.Port))
}

// ContentOptions are the hashing options files are published with.
func (c Config) ContentOptions() content.Options {
	return content.Options{FileHash: c.FileHash, PieceHash: c.PieceHash, PieceSize: c.PieceSize}
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 0xffff {
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, c.Port)
	}
	if ip := net.ParseIP(c.GroupAddress()); ip == nil || !ip.IsMulticast() {
		return fmt.Errorf("%w: %q is not a multicast address", ErrInvalidConfig, c.GroupAddress())
	}
	if c.PieceSize <= 0 || c.PieceSize > protocol.MaxPieceSize {
		return fmt.Errorf("%w: piece size %d (max %d)", ErrInvalidConfig, c.PieceSize, protocol.MaxPieceSize)
	}
	if c.FileHash == protocol.HashNone || !c.FileHash.Valid() {
		return fmt.Errorf("%w: file hash %s", ErrInvalidConfig, c.FileHash)
	}
	if !c.PieceHash.Valid() {
		return fmt.Errorf("%w: piece hash %s", ErrInvalidConfig, c.PieceHash)
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("%w: dial timeout %v", ErrInvalidConfig, c.DialTimeout)
	}
	if c.IDCacheSize <= 0 {
		return fmt.Errorf("%w: identifier cache size %d", ErrInvalidConfig, c.IDCacheSize)
	}
	if c.DownloadPath == "" {
		return fmt.Errorf("%w: empty download path", ErrInvalidConfig)
	}
	return nil
}
