package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"net"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/reframe/internal/types"
	"github.com/vmihailenco/msgpack/v5"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

func newMockDetector(payload []byte) (*PythonDetector, *MockCloser) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}

	binary.Write(dataPipeMock, binary.BigEndian, uint32(len(payload)))
	dataPipeMock.Write(payload)

	// Cmd is nil because we aren't testing process management, just the protocol
	return &PythonDetector{ID: 1, Stdin: stdinMock, DataPipe: dataPipeMock}, stdinMock
}

func TestDetect(t *testing.T) {
	// Protocol: [Status:0] [NumFaces:2] [xmin ymin w h conf] x2
	payload := new(bytes.Buffer)
	payload.WriteByte(0)
	binary.Write(payload, binary.BigEndian, uint32(2))
	binary.Write(payload, binary.BigEndian, [5]float32{0.25, 0.5, 0.25, 0.125, 0.9})
	binary.Write(payload, binary.BigEndian, [5]float32{0.1, 0.1, 0.1, 0.1, 0.4})

	w, stdinMock := newMockDetector(payload.Bytes())

	inputFrame := []byte{0xFF, 0xD8, 0xBE, 0xEF}
	dets, err := w.Detect(context.Background(), inputFrame, 1920, 1080)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	// Verify Go sent the correct data TO Python: 4 byte header + frame
	sent := stdinMock.Bytes()
	if len(sent) != 4+len(inputFrame) {
		t.Fatalf("Expected %d bytes sent, got %d", 4+len(inputFrame), len(sent))
	}
	if binary.BigEndian.Uint32(sent[:4]) != uint32(len(inputFrame)) {
		t.Errorf("Wrong length header %x", sent[:4])
	}
	if !bytes.Equal(sent[4:], inputFrame) {
		t.Errorf("Frame bytes not forwarded verbatim")
	}

	if len(dets) != 2 {
		t.Fatalf("Expected 2 detections, got %d", len(dets))
	}
	c := dets[0].Center(1920, 1080)
	if math.Abs(c.X-720) > 1e-6 || math.Abs(c.Y-607.5) > 1e-6 {
		t.Errorf("Expected center (720, 607.5), got (%f, %f)", c.X, c.Y)
	}
	if math.Abs(dets[1].Confidence-0.4) > 1e-6 {
		t.Errorf("Expected confidence 0.4, got %f", dets[1].Confidence)
	}
}

func TestDetect_NoFaces(t *testing.T) {
	payload := []byte{0, 0, 0, 0, 0}
	w, _ := newMockDetector(payload)

	dets, err := w.Detect(context.Background(), []byte("frame"), 10, 10)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(dets) != 0 {
		t.Errorf("Expected no detections, got %d", len(dets))
	}
}

func TestDetect_Error(t *testing.T) {
	// Protocol: [Status:1] [MsgLen] [Msg]
	payload := new(bytes.Buffer)
	payload.WriteByte(1)
	errMsg := "Python Exception: Import Error"
	binary.Write(payload, binary.BigEndian, uint32(len(errMsg)))
	payload.WriteString(errMsg)

	w, _ := newMockDetector(payload.Bytes())

	_, err := w.Detect(context.Background(), []byte("frame"), 10, 10)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Error() != "python detector error: "+errMsg {
		t.Errorf("Expected error message '%s', got '%v'", "python detector error: "+errMsg, err)
	}
}

func TestParseResponse_Malformed(t *testing.T) {
	nan := new(bytes.Buffer)
	nan.WriteByte(0)
	binary.Write(nan, binary.BigEndian, uint32(1))
	binary.Write(nan, binary.BigEndian, [5]float32{float32(math.NaN()), 0, 0, 0, 1})

	tests := []struct {
		name string
		resp []byte
	}{
		{"Empty", nil},
		{"Unknown status", []byte{7}},
		{"Missing count", []byte{0, 0}},
		{"Count mismatch", []byte{0, 0, 0, 0, 3, 1, 2, 3}},
		{"Truncated error", []byte{1, 0, 0, 0, 9, 'x'}},
		{"Non-finite box", nan.Bytes()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseResponse(tt.resp); err == nil {
				t.Errorf("Expected error for %v", tt.resp)
			}
		})
	}
}

func TestDetect_Crash(t *testing.T) {
	// An empty data pipe is what a crashed subprocess looks like.
	w := &PythonDetector{
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: &MockCloser{Buffer: new(bytes.Buffer)},
	}
	if _, err := w.Detect(context.Background(), []byte("frame"), 10, 10); err == nil {
		t.Fatal("Expected error from closed pipe")
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close without process should succeed, got %v", err)
	}
}

func TestDetect_CrashLogs(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	command := []string{"sh", "-c", "echo 'ModuleNotFoundError: mediapipe' >&2; exit 1"}
	w, err := NewPythonDetector(context.Background(), 0, command)
	if err != nil {
		t.Fatalf("Failed to start detector: %v", err)
	}

	if _, err := w.Detect(context.Background(), []byte("frame"), 10, 10); err == nil {
		t.Fatal("Expected error from crashed detector")
	}
	if err := w.Close(); err == nil {
		t.Error("Expected non-zero exit from Close")
	}
	if got := w.Logs(); got != "ModuleNotFoundError: mediapipe" {
		t.Errorf("Logs() = %q", got)
	}
}

func serveOnce(t *testing.T, handle func(socketRequest) socketResponse) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "det.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			var req socketRequest
			if err := msgpack.NewDecoder(conn).Decode(&req); err == nil {
				resp := handle(req)
				msgpack.NewEncoder(conn).Encode(&resp)
			}
			conn.Close()
		}
	}()
	return path
}

func TestSocketDetector(t *testing.T) {
	received := make(chan socketRequest, 1)
	path := serveOnce(t, func(req socketRequest) socketResponse {
		received <- req
		return socketResponse{Detections: []types.Detection{{XMin: 0.4, YMin: 0.3, Width: 0.2, Height: 0.2, Confidence: 0.95}}}
	})

	d := NewSocketDetector(path, time.Second)
	defer d.Close()

	dets, err := d.Detect(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xD9}, 640, 480)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	got := <-received
	if got.Width != 640 || got.Height != 480 || len(got.Data) != 4 {
		t.Errorf("Service received %+v", got)
	}
	if len(dets) != 1 {
		t.Fatalf("Expected 1 detection, got %d", len(dets))
	}
	c := dets[0].Center(640, 480)
	if math.Abs(c.X-320) > 1e-9 || math.Abs(c.Y-192) > 1e-9 {
		t.Errorf("Expected center (320, 192), got (%f, %f)", c.X, c.Y)
	}
}

func TestSocketDetector_ServiceError(t *testing.T) {
	path := serveOnce(t, func(socketRequest) socketResponse {
		return socketResponse{Error: "model not loaded"}
	})

	_, err := NewSocketDetector(path, time.Second).Detect(context.Background(), []byte("x"), 1, 1)
	if err == nil || !strings.Contains(err.Error(), "model not loaded") {
		t.Fatalf("Expected service error, got %v", err)
	}
}

func TestSocketDetector_NoService(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.sock")
	_, err := NewSocketDetector(path, 100*time.Millisecond).Detect(context.Background(), []byte("x"), 1, 1)
	if err == nil {
		t.Fatal("Expected connection error")
	}
}
