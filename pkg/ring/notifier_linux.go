//go:build linux

package ring

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// Notifier coalesces wake-ups through an eventfd counter: Notify adds
// to the kernel counter, Wait consumes and returns the accumulated
// count. One descriptor serves any number of notifications between
// reads.
type Notifier struct {
	fd int
}

// NewNotifier creates the eventfd.
func NewNotifier() (*Notifier, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("ring: eventfd: %w", err)
	}
	return &Notifier{fd: fd}, nil
}

// Notify adds count to the kernel counter.
func (n *Notifier) Notify(count uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], count)
	if _, err := unix.Write(n.fd, buf[:]); err != nil {
		return fmt.Errorf("ring: eventfd write: %w", err)
	}
	return nil
}

// Wait blocks until at least one notification arrived and returns the
// accumulated count, resetting the counter.
func (n *Notifier) Wait() (uint64, error) {
	var buf [8]byte
	if _, err := unix.Read(n.fd, buf[:]); err != nil {
		return 0, fmt.Errorf("ring: eventfd read: %w", err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// Fd exposes the raw descriptor for multiplexed polling.
func (n *Notifier) Fd() int { return n.fd }

// Close releases the descriptor.
func (n *Notifier) Close() error {
	if n.fd >= 0 {
		err := unix.Close(n.fd)
		n.fd = -1
		return err
	}
	return nil
}
