package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/yimingwow/marketfabric/pkg/codec"
	"github.com/yimingwow/marketfabric/pkg/instrument"
	"github.com/yimingwow/marketfabric/pkg/relay"
	"github.com/yimingwow/marketfabric/pkg/ring"
	"github.com/yimingwow/marketfabric/pkg/tlv"
	"github.com/yimingwow/marketfabric/pkg/transport"
)

var (
	socketDir   = filepath.Join(os.TempDir(), "marketfabric-demo")
	ringChannel = "market_data"

	// Demo trade parameters
	demoPrice  = int64(5_000_000_000_000) // $50,000.00000000
	demoVolume = uint64(100_000_000)      // 1.0
)

func main() {
	log.Printf("🚀starting market data fabric demo...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Market data relay on a temp socket
	socketPath := filepath.Join(socketDir, "market_data.sock")
	broker := relay.NewMarketData(relay.Config{SocketPath: socketPath}, nil)
	go func() {
		if err := broker.Serve(ctx); err != nil {
			log.Fatalf("Failed to serve relay: %v", err)
		}
	}()
	defer broker.Close()
	time.Sleep(100 * time.Millisecond)

	// Subscribe first so the fan-out has somewhere to go
	sub, err := transport.NewSubscriber(ctx, socketPath, codec.ChecksumSkip, 0, nil)
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	producer, err := transport.NewProducer(ctx, socketPath, nil)
	if err != nil {
		log.Fatalf("Failed to connect producer: %v", err)
	}
	defer producer.Close()

	// Build a trade for BTC on Binance
	btc := instrument.Coin(instrument.VenueBinance, "BTC")
	trade := tlv.Trade{
		InstrumentKey: btc.CacheKey(),
		Price:         demoPrice,
		Volume:        demoVolume,
		TimestampNs:   uint64(time.Now().UnixNano()),
	}
	payload, err := trade.Encode()
	if err != nil {
		log.Fatalf("Failed to encode trade: %v", err)
	}
	msg, err := codec.NewBuilder(codec.DomainMarketData, codec.SourceBinanceCollector).
		AddTLV(tlv.TypeTrade, payload).
		WithSequence(42).
		WithInstrument(btc.U64()).
		Build()
	if err != nil {
		log.Fatalf("Failed to build message: %v", err)
	}
	if err := producer.Publish(ctx, msg); err != nil {
		log.Fatalf("Failed to publish: %v", err)
	}
	log.Printf("😈published trade: %d bytes, instrument %v", len(msg), btc)

	recvCtx, recvCancel := context.WithTimeout(ctx, 5*time.Second)
	defer recvCancel()
	delivered, err := sub.Next(recvCtx)
	if err != nil {
		log.Fatalf("Failed to receive: %v", err)
	}
	got, err := tlv.DecodeTrade(delivered.TLVs[0].Payload)
	if err != nil {
		log.Fatalf("Failed to decode trade: %v", err)
	}
	log.Printf("👌received global seq %d: %s price=%d volume=%d",
		delivered.Header.Sequence, got.Instrument(), got.Price, got.Volume)

	// Same trade through the shared-memory fast path
	shm, err := ring.Create(filepath.Join(socketDir, ringChannel+".shm"), 10, 2, nil)
	if err != nil {
		log.Fatalf("Failed to create ring: %v", err)
	}
	defer shm.Close()

	consumer, err := shm.Attach()
	if err != nil {
		log.Fatalf("Failed to attach consumer: %v", err)
	}
	defer consumer.Detach()

	rec := ring.Record{
		TimestampNs: uint64(time.Now().UnixNano()),
		Primary:     50_000.0,
		Secondary:   1.0,
	}
	rec.SetFingerprint("BTC-USDT")
	rec.SetVenue("binance")
	rec.SetID("demo-trade-1")
	if _, err := shm.Write(rec); err != nil {
		log.Fatalf("Failed to write ring record: %v", err)
	}

	n := consumer.Poll(func(r ring.Record) {
		log.Printf("⚡ring record: %s @ %s price=%.2f volume=%.4f",
			r.Fingerprint[:8], r.Venue[:7], r.Primary, r.Secondary)
	})
	log.Printf("🎉demo complete: %d ring record(s) drained", n)
}
