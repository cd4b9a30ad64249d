// Package video decodes a video into a sequential stream of JPEG frames.
package video

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andresmejia3/reframe/internal/utils"
)

const megabyte = 1024 * 1024

// Source yields the frames of one video in decode order.
// It satisfies detect.FrameSource.
type Source struct {
	info    utils.VideoInfo
	scanner *bufio.Scanner
	out     io.ReadCloser
	cmd     *utils.SafeCommand
	cancel  context.CancelFunc

	read     int
	finished bool
	waitOnce sync.Once
	waitErr  error
}

// NewStreamSource reads concatenated JPEG images from r.
func NewStreamSource(r io.Reader, info utils.VideoInfo) *Source {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)
	return &Source{info: info, scanner: scanner}
}

// Open probes path and starts an ffmpeg decoder for it.
func Open(ctx context.Context, path string) (*Source, error) {
	info, err := utils.ProbeVideo(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", path, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	ffmpeg := utils.NewFFmpegCmd(ctx, path)
	out, err := ffmpeg.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create FFmpeg stdout pipe: %w", err)
	}
	if err := ffmpeg.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start FFmpeg: %w", err)
	}

	s := NewStreamSource(out, info)
	s.out = out
	s.cmd = ffmpeg
	s.cancel = cancel
	return s, nil
}

// FrameCount is the container's frame count, 0 if unknown. The number of
// frames NextFrame yields is authoritative.
func (s *Source) FrameCount() int { return s.info.Frames }
func (s *Source) Width() int      { return s.info.Width }
func (s *Source) Height() int     { return s.info.Height }
func (s *Source) FPS() float64    { return s.info.FPS }

// Read returns how many frames have been yielded so far.
func (s *Source) Read() int { return s.read }

// NextFrame returns the next JPEG frame, or io.EOF after the last one.
// A decoder failure is reported instead of io.EOF so a truncated stream is
// never mistaken for a short video.
func (s *Source) NextFrame() ([]byte, error) {
	if s.finished {
		return nil, io.EOF
	}
	if s.scanner.Scan() {
		s.read++
		frame := make([]byte, len(s.scanner.Bytes()))
		copy(frame, s.scanner.Bytes())
		return frame, nil
	}
	s.finished = true

	if err := s.scanner.Err(); err != nil {
		if s.cmd != nil {
			s.cancel()
			s.wait()
		}
		return nil, fmt.Errorf("frame scanner failed: %w", err)
	}
	if err := s.wait(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (s *Source) wait() error {
	s.waitOnce.Do(func() {
		if s.cmd == nil {
			return
		}
		if err := s.cmd.Wait(); err != nil {
			logs := strings.TrimSpace(s.cmd.Stderr.String())
			if logs != "" {
				s.waitErr = fmt.Errorf("ffmpeg failed: %w: %s", err, logs)
			} else {
				s.waitErr = fmt.Errorf("ffmpeg failed: %w", err)
			}
		}
		s.cancel()
	})
	return s.waitErr
}

// Close stops the decoder if it is still running. Safe to call more than once.
func (s *Source) Close() error {
	if s.cmd == nil {
		return nil
	}
	if !s.finished {
		// Abandoning the stream early; ffmpeg's exit status is meaningless now.
		s.finished = true
		s.cancel()
		s.out.Close()
	}
	s.wait()
	return nil
}
