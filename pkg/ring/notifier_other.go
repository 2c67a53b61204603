//go:build !linux

package ring

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// Notifier falls back to a self-pipe on systems without an event-counter
// descriptor. Writes carry 8-byte counts and never block: when the pipe
// is full the wake-up is already pending, so a dropped write loses
// nothing.
type Notifier struct {
	readFd  int
	writeFd int
}

// NewNotifier creates the pipe pair.
func NewNotifier() (*Notifier, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, fmt.Errorf("ring: pipe: %w", err)
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, fmt.Errorf("ring: pipe nonblock: %w", err)
	}
	return &Notifier{readFd: fds[0], writeFd: fds[1]}, nil
}

// Notify writes an 8-byte count; EAGAIN means a wake-up is pending.
func (n *Notifier) Notify(count uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], count)
	if _, err := unix.Write(n.writeFd, buf[:]); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("ring: pipe write: %w", err)
	}
	return nil
}

// Wait blocks for the next count.
func (n *Notifier) Wait() (uint64, error) {
	var buf [8]byte
	if _, err := unix.Read(n.readFd, buf[:]); err != nil {
		return 0, fmt.Errorf("ring: pipe read: %w", err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// Fd exposes the read descriptor for multiplexed polling.
func (n *Notifier) Fd() int { return n.readFd }

// Close releases both descriptors.
func (n *Notifier) Close() error {
	var first error
	for _, fd := range []int{n.readFd, n.writeFd} {
		if fd >= 0 {
			if err := unix.Close(fd); err != nil && first == nil {
				first = err
			}
		}
	}
	n.readFd, n.writeFd = -1, -1
	return first
}
