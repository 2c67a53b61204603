package relay

import (
	"context"
	"encoding/binary"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yimingwow/marketfabric/pkg/codec"
	"github.com/yimingwow/marketfabric/pkg/instrument"
	"github.com/yimingwow/marketfabric/pkg/tlv"
	"github.com/yimingwow/marketfabric/pkg/transport"
)

func signalMessage(t *testing.T, producerSeq uint64) []byte {
	t.Helper()
	identity := tlv.SignalIdentity{StrategyID: 21, SignalID: producerSeq, Confidence: 90, ChainID: 137}
	payload, err := identity.Encode()
	require.NoError(t, err)
	msg, err := codec.NewBuilder(codec.DomainSignal, codec.SourceArbitrageStrategy).
		AddTLV(tlv.TypeSignalIdentity, payload).
		WithSequence(producerSeq).
		Build()
	require.NoError(t, err)
	return msg
}

func tradeMessage(t *testing.T, producerSeq uint64) []byte {
	t.Helper()
	btc := instrument.Coin(instrument.VenueBinance, "BTC")
	trade := tlv.Trade{InstrumentKey: btc.CacheKey(), Price: 5_000_000_000_000, Volume: 100_000_000, TimestampNs: 1}
	payload, err := trade.Encode()
	require.NoError(t, err)
	msg, err := codec.NewBuilder(codec.DomainMarketData, codec.SourceBinanceCollector).
		AddTLV(tlv.TypeTrade, payload).
		WithSequence(producerSeq).
		Build()
	require.NoError(t, err)
	return msg
}

func TestIngestStampsGlobalSequence(t *testing.T) {
	r := NewSignal(Config{SocketPath: "unused"}, nil)
	for want := uint64(1); want <= 5; want++ {
		seq, err := r.Ingest(signalMessage(t, 100+want))
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	}
	assert.Equal(t, uint64(5), r.GlobalSequence())
	assert.Equal(t, uint64(5), r.Stats().MessagesProcessed)
}

func TestIngestRejectsWrongDomain(t *testing.T) {
	r := NewSignal(Config{SocketPath: "unused"}, nil)
	_, err := r.Ingest(tradeMessage(t, 1))
	assert.ErrorIs(t, err, ErrInvalidRelayDomain)
	assert.Equal(t, uint64(1), r.Stats().MessagesDropped)
}

func TestIngestRejectsOutOfDomainTLV(t *testing.T) {
	r := NewMarketData(Config{SocketPath: "unused"}, nil)
	// A signal TLV under a market-data header is a routing error.
	identity := tlv.SignalIdentity{StrategyID: 1}
	payload, err := identity.Encode()
	require.NoError(t, err)
	msg, err := codec.NewBuilder(codec.DomainMarketData, codec.SourceBinanceCollector).
		AddTLV(tlv.TypeSignalIdentity, payload).
		Build()
	require.NoError(t, err)

	_, err = r.Ingest(msg)
	assert.ErrorIs(t, err, tlv.ErrOutOfDomain)
	assert.Equal(t, uint64(1), r.Stats().OutOfDomainTLVs)
}

func TestIngestChecksumPolicy(t *testing.T) {
	sig := NewSignal(Config{SocketPath: "unused"}, nil)
	msg := signalMessage(t, 1)
	corrupt := append([]byte(nil), msg...)
	corrupt[codec.HeaderSize+3] ^= 0x01
	_, err := sig.Ingest(corrupt)
	assert.ErrorIs(t, err, codec.ErrChecksumMismatch)
	assert.Equal(t, uint64(1), sig.Stats().ChecksumFailures)

	// The market-data broker skips the CRC entirely.
	md := NewMarketData(Config{SocketPath: "unused"}, nil)
	trade := tradeMessage(t, 1)
	corruptTrade := append([]byte(nil), trade...)
	corruptTrade[codec.HeaderSize+20] ^= 0x01
	_, err = md.Ingest(corruptTrade)
	assert.NoError(t, err)
}

func TestExecutionPolicyHygiene(t *testing.T) {
	r := NewExecution(Config{SocketPath: "unused"}, nil)

	order := tlv.Cancel{OrderID: 1, TimestampNs: 1}
	payload, err := order.Encode()
	require.NoError(t, err)

	// Zero producer sequence is rejected.
	msg, err := codec.NewBuilder(codec.DomainExecution, codec.SourceExecutionEngine).
		AddTLV(tlv.TypeCancel, payload).
		Build()
	require.NoError(t, err)
	_, err = r.Ingest(msg)
	assert.ErrorIs(t, err, ErrMissingSequence)

	// A timestamp far in the past is rejected.
	stale, err := codec.NewBuilder(codec.DomainExecution, codec.SourceExecutionEngine).
		AddTLV(tlv.TypeCancel, payload).
		WithSequence(1).
		WithTimestamp(1_000_000).
		Build()
	require.NoError(t, err)
	_, err = r.Ingest(stale)
	assert.ErrorIs(t, err, ErrStaleTimestamp)

	// A fresh, sequenced message passes.
	fresh, err := codec.NewBuilder(codec.DomainExecution, codec.SourceExecutionEngine).
		AddTLV(tlv.TypeCancel, payload).
		WithSequence(1).
		Build()
	require.NoError(t, err)
	_, err = r.Ingest(fresh)
	assert.NoError(t, err)
}

func TestConsumerStateMachine(t *testing.T) {
	c := newConsumer(16, 100)
	assert.Equal(t, StateConnected, c.State())

	// First delivery synchronizes.
	_, _, gap, dup := c.observeDelivery(100)
	assert.False(t, gap)
	assert.False(t, dup)
	assert.Equal(t, StateSynced, c.State())

	// Contiguous delivery stays synced.
	_, _, gap, dup = c.observeDelivery(101)
	assert.False(t, gap)
	assert.False(t, dup)

	// A jump opens a gap and enters recovery.
	start, end, gap, dup := c.observeDelivery(150)
	assert.True(t, gap)
	assert.False(t, dup)
	assert.Equal(t, uint64(102), start)
	assert.Equal(t, uint64(149), end)
	assert.Equal(t, StateRecovering, c.State())

	c.recoveryComplete()
	assert.Equal(t, StateSynced, c.State())

	// Replayed past sequences read as duplicates on the live path.
	_, _, _, dup = c.observeDelivery(149)
	assert.True(t, dup)

	c.disconnect()
	assert.Equal(t, StateDisconnected, c.State())
}

func TestGapRetransmitFromReplayBuffer(t *testing.T) {
	r := NewSignal(Config{SocketPath: "unused"}, nil)

	// Ingest 150 messages; global sequences 1..150 land in the replay
	// buffer.
	for i := 1; i <= 150; i++ {
		_, err := r.Ingest(signalMessage(t, uint64(i)))
		require.NoError(t, err)
	}

	c := newConsumer(1024, 100)
	c.observeDelivery(100) // synced at 100
	start, end, gap, _ := c.observeDelivery(150)
	require.True(t, gap)
	require.Equal(t, uint64(101), start)
	require.Equal(t, uint64(149), end)

	r.serviceRecovery(c, start, end)
	assert.Equal(t, StateSynced, c.State())
	assert.Equal(t, uint64(1), r.Stats().RecoveryRequests)
	assert.Zero(t, r.Stats().SnapshotRequests)

	// 49 replayed frames in order, then the recovery response.
	for want := uint64(101); want <= 149; want++ {
		select {
		case frame := <-c.recovery:
			assert.Equal(t, want, frameSequence(frame))
		default:
			t.Fatalf("missing replay frame %d", want)
		}
	}
	select {
	case frame := <-c.recovery:
		tlvs, err := codec.ParseTLVs(codec.Payload(frame))
		require.NoError(t, err)
		require.Len(t, tlvs, 1)
		assert.Equal(t, tlv.TypeRecoveryResponse, tlvs[0].Type)
		resp, err := tlv.DecodeRecoveryResponse(tlvs[0].Payload)
		require.NoError(t, err)
		assert.Equal(t, tlv.RecoveryComplete, resp.Disposition)
		assert.Equal(t, uint64(101), resp.StartSequence)
		assert.Equal(t, uint64(149), resp.EndSequence)
	default:
		t.Fatal("missing recovery response")
	}
}

type fakeSnapshotProvider struct {
	calls    int
	messages [][]byte
}

func (f *fakeSnapshotProvider) Snapshot(ctx context.Context, domain codec.Domain, start, end uint64) ([][]byte, error) {
	f.calls++
	return f.messages, nil
}

func TestGapSnapshotEscalation(t *testing.T) {
	r := NewSignal(Config{SocketPath: "unused"}, nil)
	provider := &fakeSnapshotProvider{}
	for i := 0; i < 3; i++ {
		provider.messages = append(provider.messages, signalMessage(t, uint64(i+1)))
	}
	r.SetSnapshotProvider(provider)

	_, err := r.Ingest(signalMessage(t, 1))
	require.NoError(t, err)

	c := newConsumer(1024, 100)
	c.observeDelivery(100)
	start, end, gap, _ := c.observeDelivery(10_000)
	require.True(t, gap)
	require.Equal(t, uint64(101), start)
	require.Equal(t, uint64(9_999), end)

	// Gap of 9,899 exceeds the threshold of 100: snapshot, not replay.
	r.serviceRecovery(c, start, end)
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, uint64(1), r.Stats().SnapshotRequests)
	assert.Equal(t, StateSynced, c.State())

	// Snapshot messages are restamped to fill the gap from its start.
	for want := uint64(101); want <= 103; want++ {
		select {
		case frame := <-c.recovery:
			assert.Equal(t, want, frameSequence(frame))
			_, err := codec.ParseHeader(frame, codec.ChecksumEnforce)
			assert.NoError(t, err, "restamped frame must carry a fresh checksum")
		default:
			t.Fatalf("missing snapshot frame %d", want)
		}
	}
}

func TestRetransmitMissEscalatesToSnapshot(t *testing.T) {
	r := NewSignal(Config{SocketPath: "unused"}, nil)
	provider := &fakeSnapshotProvider{}
	r.SetSnapshotProvider(provider)

	// Nothing in the replay buffer: a small gap still cannot replay.
	c := newConsumer(64, 100)
	c.observeDelivery(10)
	start, end, gap, _ := c.observeDelivery(20)
	require.True(t, gap)

	r.serviceRecovery(c, start, end)
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, uint64(1), r.Stats().ReplayMisses)
}

func TestEndToEndOverUnixSocket(t *testing.T) {
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "signals.sock")
	r := NewSignal(Config{SocketPath: socketPath}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = r.Serve(ctx)
	}()
	waitForSocket(t, socketPath)

	sub, err := transport.NewSubscriber(ctx, socketPath, codec.ChecksumEnforce, 0, nil)
	require.NoError(t, err)
	defer sub.Close()

	producer, err := transport.NewProducer(ctx, socketPath, nil)
	require.NoError(t, err)
	defer producer.Close()

	for i := 1; i <= 3; i++ {
		require.NoError(t, producer.Publish(ctx, signalMessage(t, uint64(i))))
	}

	recvCtx, recvCancel := context.WithTimeout(ctx, 5*time.Second)
	defer recvCancel()
	var got []uint64
	for len(got) < 3 {
		msg, err := sub.Next(recvCtx)
		require.NoError(t, err)
		// Every delivery here is a signal message carrying TLVs.
		require.NotEmpty(t, msg.TLVs)
		got = append(got, msg.Header.Sequence)
	}
	// Global sequences are monotonic and contiguous for a live consumer.
	assert.Equal(t, []uint64{1, 2, 3}, got)

	require.NoError(t, r.Close())
}

func TestReplayBufferRange(t *testing.T) {
	b := newReplayBuffer(4)
	frame := func(seq uint64) []byte {
		buf := make([]byte, codec.HeaderSize)
		binary.LittleEndian.PutUint64(buf[9:17], seq)
		return buf
	}
	for seq := uint64(1); seq <= 6; seq++ {
		b.Append(seq, frame(seq))
	}
	// 1 and 2 were evicted by capacity 4.
	_, err := b.Range(2, 3)
	assert.ErrorIs(t, err, ErrReplayBufferMiss)

	frames, err := b.Range(3, 6)
	require.NoError(t, err)
	require.Len(t, frames, 4)
	for i, f := range frames {
		assert.Equal(t, uint64(3+i), frameSequence(f))
	}

	_, err = b.Range(5, 7)
	assert.ErrorIs(t, err, ErrReplayBufferMiss)
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", path)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("relay socket never appeared")
}
