package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/andresmejia3/reframe/internal/types"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultSocketTimeout bounds one request/response exchange.
const DefaultSocketTimeout = 5 * time.Second

// SocketDetector talks to a long-running detection service over a Unix
// socket, one connection per frame.
type SocketDetector struct {
	socketPath string
	timeout    time.Duration
}

// socketRequest is sent to the service.
type socketRequest struct {
	Height int    `msgpack:"h"`
	Width  int    `msgpack:"w"`
	Data   []byte `msgpack:"d"` // JPEG bytes
}

// socketResponse is received from the service. Boxes are normalized to [0,1].
type socketResponse struct {
	Detections []types.Detection `msgpack:"detections"`
	Error      string            `msgpack:"error"`
}

// NewSocketDetector creates a client for the service listening on socketPath.
func NewSocketDetector(socketPath string, timeout time.Duration) *SocketDetector {
	if timeout <= 0 {
		timeout = DefaultSocketTimeout
	}
	return &SocketDetector{socketPath: socketPath, timeout: timeout}
}

func (c *SocketDetector) Detect(ctx context.Context, frame []byte, width, height int) ([]types.Detection, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to detector service: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	req := socketRequest{Height: height, Width: width, Data: frame}
	if err := msgpack.NewEncoder(conn).Encode(&req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp socketResponse
	if err := msgpack.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Error != "" {
		return nil, errors.New("detector service error: " + resp.Error)
	}
	for i, d := range resp.Detections {
		if !finite(d) {
			return nil, fmt.Errorf("detector returned non-finite box %d", i)
		}
	}
	return resp.Detections, nil
}

// Close is a no-op: connections are per request.
func (c *SocketDetector) Close() error {
	return nil
}
