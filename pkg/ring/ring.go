package ring

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Shared-memory layout, all little-endian, 64-byte cache lines:
//
//	line 0                 producer control: write_head, capacity, max consumers
//	lines 1..MaxConsumers  consumer control: cursor, attached flag
//	remainder              capacity * 64-byte record slots
//
// The producer's control words and each consumer's control words sit on
// separate cache lines, so producer and consumers never false-share. Go's atomic loads and stores give at least the
// acquire/release ordering the publication protocol needs: a consumer
// that observes an advanced write_head also observes the record bytes
// written before the store.
const (
	cacheLine = 64

	// DefaultCapacityLog2 gives 2^20 slots.
	DefaultCapacityLog2 = 20

	// DefaultMaxConsumers bounds independent readers.
	DefaultMaxConsumers = 8
)

var (
	ErrRingFull              = errors.New("ring: full, slowest consumer one lap behind")
	ErrConsumerSlotExhausted = errors.New("ring: all consumer slots attached")
	ErrBadGeometry           = errors.New("ring: file size does not match geometry")
)

// Ring is one mapped shared-memory channel. The creating process is the
// single producer; any process may map the file with Open and attach as
// a consumer. Open maps it read-write, because attaching and polling
// store the consumer's cursor in the mapping.
type Ring struct {
	f        *os.File
	data     []byte
	capacity uint64
	mask     uint64
	maxCons  int
	producer bool
	notifier *Notifier
	log      *zap.Logger
}

func headerSize(maxConsumers int) int {
	return cacheLine * (1 + maxConsumers)
}

func fileSize(capacity uint64, maxConsumers int) int {
	return headerSize(maxConsumers) + int(capacity)*RecordSize
}

// Create builds (or truncates) the channel file and maps it read-write
// as the producing side. Path convention: /tmp/<prefix>/<channel>.shm.
func Create(path string, capacityLog2 uint, maxConsumers int, log *zap.Logger) (*Ring, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if maxConsumers <= 0 {
		maxConsumers = DefaultMaxConsumers
	}
	capacity := uint64(1) << capacityLog2

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ring: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ring: open %s: %w", path, err)
	}
	size := fileSize(capacity, maxConsumers)
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("ring: size %s: %w", path, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ring: mmap %s: %w", path, err)
	}

	r := &Ring{
		f: f, data: data,
		capacity: capacity, mask: capacity - 1,
		maxCons: maxConsumers, producer: true,
		log: log.With(zap.String("ring", path)),
	}
	// Geometry lives in the producer line after write_head so attaching
	// processes can validate without out-of-band configuration.
	atomic.StoreUint64(r.word(8), capacity)
	atomic.StoreUint64(r.word(16), uint64(maxConsumers))
	atomic.StoreUint64(r.word(0), 0)

	notifier, err := NewNotifier()
	if err != nil {
		r.Close()
		return nil, err
	}
	r.notifier = notifier
	return r, nil
}

// Open maps an existing channel file as a consuming side.
func Open(path string, log *zap.Logger) (*Ring, error) {
	if log == nil {
		log = zap.NewNop()
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("ring: open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ring: stat %s: %w", path, err)
	}
	if st.Size() < int64(cacheLine) {
		f.Close()
		return nil, ErrBadGeometry
	}
	// Map the producer line first to read geometry, then remap in full.
	probe, err := unix.Mmap(int(f.Fd()), 0, cacheLine, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ring: mmap probe %s: %w", path, err)
	}
	capacity := atomic.LoadUint64((*uint64)(unsafe.Pointer(&probe[8])))
	maxCons := int(atomic.LoadUint64((*uint64)(unsafe.Pointer(&probe[16]))))
	unix.Munmap(probe)

	if capacity == 0 || capacity&(capacity-1) != 0 || maxCons <= 0 ||
		st.Size() != int64(fileSize(capacity, maxCons)) {
		f.Close()
		return nil, ErrBadGeometry
	}
	data, err := unix.Mmap(int(f.Fd()), 0, fileSize(capacity, maxCons), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ring: mmap %s: %w", path, err)
	}
	return &Ring{
		f: f, data: data,
		capacity: capacity, mask: capacity - 1,
		maxCons: maxCons,
		log:     log.With(zap.String("ring", path)),
	}, nil
}

// Capacity returns the slot count.
func (r *Ring) Capacity() uint64 { return r.capacity }

// Notifier returns the producer-side event notifier, nil on consumer maps.
func (r *Ring) Notifier() *Notifier { return r.notifier }

func (r *Ring) word(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&r.data[off]))
}

func (r *Ring) consumerLine(id int) int {
	return cacheLine * (1 + id)
}

func (r *Ring) slot(seq uint64) []byte {
	off := headerSize(r.maxCons) + int(seq&r.mask)*RecordSize
	return r.data[off : off+RecordSize]
}

// minConsumerHead scans attached cursors; with no consumer attached the
// ring never refuses writes.
func (r *Ring) minConsumerHead(writeHead uint64) uint64 {
	min := writeHead
	for i := 0; i < r.maxCons; i++ {
		line := r.consumerLine(i)
		if atomic.LoadUint64(r.word(line+8)) == 0 {
			continue
		}
		if cur := atomic.LoadUint64(r.word(line)); cur < min {
			min = cur
		}
	}
	return min
}

// Write publishes a batch of records. Slot bytes are written before the
// single release-store of write_head, so a consumer that sees the new
// head sees every record. When the slowest attached consumer is a full
// lap behind, the write is refused and counted rather than overwriting
// unread slots.
func (r *Ring) Write(records ...Record) (int, error) {
	head := atomic.LoadUint64(r.word(0))
	written := 0
	for i := range records {
		if head-r.minConsumerHead(head) >= r.capacity {
			break
		}
		records[i].encodeTo(r.slot(head))
		head++
		written++
	}
	if written > 0 {
		atomic.StoreUint64(r.word(0), head)
		if r.notifier != nil {
			if err := r.notifier.Notify(uint64(written)); err != nil {
				r.log.Warn("notifier signal failed", zap.Error(err))
			}
		}
	}
	if written < len(records) {
		r.log.Warn("ring full, dropping writes",
			zap.Int("dropped", len(records)-written),
			zap.Uint64("write_head", head))
		return written, ErrRingFull
	}
	return written, nil
}

// Consumer is one attached read cursor.
type Consumer struct {
	ring *Ring
	id   int
}

// Attach claims a free consumer slot. The cursor starts at the current
// write_head: consumers see only records published after they attach.
func (r *Ring) Attach() (*Consumer, error) {
	for i := 0; i < r.maxCons; i++ {
		line := r.consumerLine(i)
		if atomic.CompareAndSwapUint64(r.word(line+8), 0, 1) {
			atomic.StoreUint64(r.word(line), atomic.LoadUint64(r.word(0)))
			return &Consumer{ring: r, id: i}, nil
		}
	}
	return nil, ErrConsumerSlotExhausted
}

// Poll drains every published record past the cursor, invoking fn per
// record in publication order, and returns the drain count.
func (c *Consumer) Poll(fn func(Record)) int {
	return c.PollN(-1, fn)
}

// PollN drains at most max records (max < 0 means unbounded). The
// acquire-load of write_head gates visibility of the record bytes; the
// cursor release-store publishes the new position to the producer.
func (c *Consumer) PollN(max int, fn func(Record)) int {
	line := c.ring.consumerLine(c.id)
	cur := atomic.LoadUint64(c.ring.word(line))
	head := atomic.LoadUint64(c.ring.word(0))
	n := 0
	for cur != head && (max < 0 || n < max) {
		fn(decodeRecord(c.ring.slot(cur)))
		cur++
		n++
	}
	if n > 0 {
		atomic.StoreUint64(c.ring.word(line), cur)
	}
	return n
}

// Cursor returns the consumer's current position.
func (c *Consumer) Cursor() uint64 {
	return atomic.LoadUint64(c.ring.word(c.ring.consumerLine(c.id)))
}

// Detach releases the slot. The cursor jumps to the current write_head
// first so a parked cursor can never wedge the producer.
func (c *Consumer) Detach() {
	line := c.ring.consumerLine(c.id)
	atomic.StoreUint64(c.ring.word(line), atomic.LoadUint64(c.ring.word(0)))
	atomic.StoreUint64(c.ring.word(line+8), 0)
}

// Close unmaps the file and releases the notifier.
func (r *Ring) Close() error {
	var first error
	if r.notifier != nil {
		if err := r.notifier.Close(); err != nil {
			first = err
		}
		r.notifier = nil
	}
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil && first == nil {
			first = err
		}
		r.data = nil
	}
	if r.f != nil {
		if err := r.f.Close(); err != nil && first == nil {
			first = err
		}
		r.f = nil
	}
	return first
}
