package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/andresmejia3/reframe/internal/types"
	"github.com/andresmejia3/reframe/internal/utils" // Using the SafeCommand wrapper
)

// DefaultCommand starts the bundled MediaPipe detector.
var DefaultCommand = []string{"python3", "-u", "python/detector.py"}

const (
	statusOK    = 0
	statusError = 1

	// Upper bound on a single response, guards against a desynchronized stream.
	maxResponse = 16 << 20
)

// PythonDetector drives one detector subprocess. Frames go to its stdin,
// results come back on a dedicated pipe (FD 3) so library chatter on
// stdout/stderr cannot corrupt the protocol.
//
// A PythonDetector handles one frame at a time and must not be shared
// between goroutines.
type PythonDetector struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
}

// NewPythonDetector starts command (DefaultCommand when empty).
// The subprocess is killed when ctx is cancelled.
func NewPythonDetector(ctx context.Context, id int, command []string) (*PythonDetector, error) {
	if len(command) == 0 {
		command = DefaultCommand
	}
	py := utils.NewSafeCommand(ctx, command[0], command[1:]...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("detector %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonDetector{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

// Communicate sends one length-prefixed message and reads one back.
func (d *PythonDetector) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(d.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := d.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(d.DataPipe, header); err != nil {
		return nil, err // This is where we catch an import or model-load crash
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponse {
		return nil, fmt.Errorf("response of %d bytes exceeds limit", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(d.DataPipe, respBody)
	return respBody, err
}

// Detect sends one JPEG frame and decodes the detections.
// width and height are unused: the subprocess decodes the JPEG itself.
func (d *PythonDetector) Detect(ctx context.Context, frame []byte, width, height int) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := d.Communicate(frame)
	if err != nil {
		return nil, err
	}
	return parseResponse(resp)
}

// parseResponse decodes
//
//	[status u8] status 0: [n u32] n x [xmin ymin w h conf float32]
//	            status 1: [len u32] [message]
func parseResponse(resp []byte) ([]types.Detection, error) {
	if len(resp) == 0 {
		return nil, errors.New("empty detector response")
	}
	r := bytes.NewReader(resp[1:])

	switch resp[0] {
	case statusOK:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, fmt.Errorf("short detector response: %w", err)
		}
		if int64(n)*20 != int64(r.Len()) {
			return nil, fmt.Errorf("detector response claims %d faces but carries %d bytes", n, r.Len())
		}
		dets := make([]types.Detection, n)
		for i := range dets {
			var box [5]float32
			if err := binary.Read(r, binary.BigEndian, &box); err != nil {
				return nil, err
			}
			dets[i] = types.Detection{
				XMin:       float64(box[0]),
				YMin:       float64(box[1]),
				Width:      float64(box[2]),
				Height:     float64(box[3]),
				Confidence: float64(box[4]),
			}
			if !finite(dets[i]) {
				return nil, fmt.Errorf("detector returned non-finite box %d", i)
			}
		}
		return dets, nil

	case statusError:
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("short detector error response: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("short detector error response: %w", err)
		}
		return nil, fmt.Errorf("python detector error: %s", msg)

	default:
		return nil, fmt.Errorf("unknown detector status %d", resp[0])
	}
}

func finite(d types.Detection) bool {
	for _, v := range []float64{d.XMin, d.YMin, d.Width, d.Height, d.Confidence} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Logs returns what the subprocess wrote to stderr. It is complete only
// after Close.
func (d *PythonDetector) Logs() string {
	if d.Cmd == nil || d.Cmd.Stderr == nil {
		return ""
	}
	return strings.TrimSpace(d.Cmd.Stderr.String())
}

// Close ends the subprocess: closing stdin tells it to exit.
func (d *PythonDetector) Close() error {
	d.Stdin.Close()
	d.DataPipe.Close()
	if d.Cmd == nil {
		return nil
	}
	return d.Cmd.Wait()
}
