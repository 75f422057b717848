package mcpsrv

import (
	"fmt"
	"net"
	"time"

	"github.com/rosrad/rtagsd/pkg/protocol"
)

// sendRequest dials s.socketPath and performs one framed request-reply
// round trip, the same dial-encode-write-read-decode shape as
// internal/cli.SendRequest (duplicated rather than imported: cli would
// otherwise need to import mcpsrv to wire an "mcp" subcommand, which
// would close an import cycle).
func (s *Server) sendRequest(t protocol.MessageType, msg any) (protocol.ClientResponseMessage, error) {
	conn, err := net.DialTimeout("unix", s.socketPath, 5*time.Second)
	if err != nil {
		return protocol.ClientResponseMessage{}, fmt.Errorf("mcpsrv: dial %s: %w", s.socketPath, err)
	}
	defer conn.Close()

	frame, err := protocol.Encode(t, msg)
	if err != nil {
		return protocol.ClientResponseMessage{}, err
	}
	if err := protocol.WriteFrame(conn, frame); err != nil {
		return protocol.ClientResponseMessage{}, err
	}

	reply, err := protocol.ReadFrame(conn)
	if err != nil {
		return protocol.ClientResponseMessage{}, err
	}
	var resp protocol.ClientResponseMessage
	if err := protocol.Decode(reply, &resp); err != nil {
		return protocol.ClientResponseMessage{}, err
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("rtagsd: %s", resp.Error)
	}
	return resp, nil
}
