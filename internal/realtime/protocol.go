package realtime

import (
	"fmt"

	"golang.org/x/mod/semver"

	"github.com/taskboard/taskboard/internal/backend"
)

// ProtocolVersion is the version of the /realtime wire format. Clients
// accept any server with the same major version.
const ProtocolVersion = "v1.1.0"

// FrameType tags a /realtime frame.
type FrameType string

const (
	// FrameHello is the first frame the server sends.
	FrameHello FrameType = "hello"

	// FrameChange carries one backend change event.
	FrameChange FrameType = "change"
)

// Frame is one JSON message on the /realtime WebSocket.
type Frame struct {
	Type     FrameType            `json:"type"`
	Protocol string               `json:"protocol,omitempty"`
	Change   *backend.ChangeEvent `json:"change,omitempty"`
}

// HelloFrame returns the handshake frame for this build.
func HelloFrame() Frame {
	return Frame{Type: FrameHello, Protocol: ProtocolVersion}
}

// CheckProtocol returns an error unless remote is a valid semantic version
// with the same major version as ProtocolVersion.
func CheckProtocol(remote string) error {
	if !semver.IsValid(remote) {
		return fmt.Errorf("invalid protocol version %q", remote)
	}
	if semver.Major(remote) != semver.Major(ProtocolVersion) {
		return fmt.Errorf("incompatible protocol version %s (client speaks %s)", remote, ProtocolVersion)
	}
	return nil
}
