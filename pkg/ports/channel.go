package ports

import "context"

// DeviceSelector narrows which device a dialer should connect to.
// An empty selector matches any device the environment offers.
type DeviceSelector struct {
	// Name matches a device's advertised name exactly.
	Name string

	// Prefix matches any device whose advertised name starts with it.
	// Ignored when Name is set.
	Prefix string
}

// Matches reports whether a device name satisfies the selector.
func (s DeviceSelector) Matches(name string) bool {
	if s.Name != "" {
		return name == s.Name
	}
	if s.Prefix != "" {
		return len(name) >= len(s.Prefix) && name[:len(s.Prefix)] == s.Prefix
	}
	return true
}

// Channel is one established bidirectional byte channel to a device.
// This layer begins at "bytes can be written to and read from an established
// per-device channel"; link negotiation happens beneath it.
type Channel interface {
	// Write sends a single frame. A failed write means this one frame did
	// not arrive, not that the channel is dead; channel death surfaces from
	// Read.
	Write(ctx context.Context, frame []byte) error

	// Read blocks until the next inbound frame arrives or the channel is
	// gone, in which case it returns a non-nil error exactly once per
	// channel and forever after.
	Read(ctx context.Context) ([]byte, error)

	// Close voluntarily tears down the channel. It unblocks a pending Read.
	Close() error
}

// Dialer establishes a channel to a device matching the selector. It returns
// the channel and the device's advertised name, or a *domain.ConnectionError
// when no matching device can be reached or the handshake fails.
type Dialer interface {
	Dial(ctx context.Context, selector DeviceSelector) (Channel, string, error)
}
