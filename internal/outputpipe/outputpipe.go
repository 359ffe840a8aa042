// Package outputpipe provides the named pipe that carries an application's
// standard output and standard error out of the device.
//
// The pipe lives inside the device's data directory so the launched
// application can open it by a device-relative path. The host side keeps
// the pipe open read-write for its whole life, so the reader never sees
// end-of-file between writers and a writer never blocks waiting for a
// reader. End of output is marked in-band with a sentinel line posted
// once the application process has exited.
package outputpipe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/firefly-engineering/simrun/internal/logging"
)

// Sentinel is the line posted after the application process exits.
const Sentinel = "__SIMRUN_PROCESS_EXITED__"

const (
	pipeDir  = "tmp"
	pipeMode = 0640
	readSize = 32 * 1024

	closeGrace = time.Second
)

// Channel is one run's output pipe.
type Channel struct {
	path    string
	relPath string
	file    *os.File

	mu       sync.Mutex
	attached bool
	closed   bool
	readDone chan struct{}

	sentinelOnce sync.Once
	sentinelErr  error

	bytesRead atomic.Int64
}

// Open creates a fresh named pipe under dataPath and opens it for reading
// and writing.
func Open(dataPath string) (*Channel, error) {
	relPath := filepath.Join(pipeDir, "simrun-"+uuid.New().String()+".fifo")

	path, err := securejoin.SecureJoin(dataPath, relPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve pipe path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create pipe directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove stale pipe: %w", err)
	}

	if err := unix.Mkfifo(path, pipeMode); err != nil {
		return nil, fmt.Errorf("failed to create pipe %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to open pipe %s: %w", path, err)
	}

	logging.Debug("output pipe opened", "path", path)
	return &Channel{path: path, relPath: relPath, file: f}, nil
}

// Path returns the absolute host path of the pipe.
func (c *Channel) Path() string {
	return c.path
}

// RelativePath returns the pipe path relative to the device data directory.
func (c *Channel) RelativePath() string {
	return c.relPath
}

// BytesRead returns the number of bytes delivered to the reader so far.
func (c *Channel) BytesRead() int64 {
	return c.bytesRead.Load()
}

// AttachReader starts delivering chunks read from the pipe to onChunk on a
// background goroutine. Chunk boundaries are arbitrary. Only one reader may
// be attached.
func (c *Channel) AttachReader(onChunk func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("output pipe is closed")
	}
	if c.attached {
		return errors.New("output pipe already has a reader")
	}
	c.attached = true
	c.readDone = make(chan struct{})

	go c.readLoop(onChunk)
	return nil
}

func (c *Channel) readLoop(onChunk func([]byte)) {
	defer close(c.readDone)

	buf := make([]byte, readSize)
	for {
		n, err := c.file.Read(buf)
		if c.isClosed() {
			return
		}
		if n > 0 {
			c.bytesRead.Add(int64(n))
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onChunk(chunk)
		}
		if err != nil {
			if !errors.Is(err, os.ErrClosed) {
				logging.Debug("output pipe read ended", "path", c.path, "error", err)
			}
			return
		}
	}
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// PostSentinel writes the termination sentinel. Only the first call writes.
func (c *Channel) PostSentinel() error {
	c.sentinelOnce.Do(func() {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			c.sentinelErr = errors.New("output pipe is closed")
			return
		}
		// Leading newline terminates any partial line left by the app.
		_, c.sentinelErr = c.file.WriteString("\n" + Sentinel + "\n")
	})
	return c.sentinelErr
}

// Close stops the reader and removes the pipe.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	done := c.readDone
	c.mu.Unlock()

	if done != nil {
		// Blocking pipe reads are not interrupted by Close on every
		// platform, so wake the reader with one byte and let it observe
		// the closed flag.
		_, _ = c.file.Write([]byte{'\n'})
		select {
		case <-done:
		case <-time.After(closeGrace):
			logging.Warn("output pipe reader did not stop", "path", c.path)
		}
	}
	err := c.file.Close()
	if rmErr := os.Remove(c.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}
