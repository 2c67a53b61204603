// relayd hosts one domain broker per process. Exit codes: 0 clean
// shutdown, 2 invalid configuration, 3 socket bind failure, 4 ring
// mapping failure, 5 protocol self-test failure.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yimingwow/marketfabric/pkg/codec"
	"github.com/yimingwow/marketfabric/pkg/config"
	"github.com/yimingwow/marketfabric/pkg/relay"
	"github.com/yimingwow/marketfabric/pkg/ring"
	"github.com/yimingwow/marketfabric/pkg/tlv"
)

const (
	exitOK           = 0
	exitConfig       = 2
	exitBind         = 3
	exitRing         = 4
	exitProtocolTest = 5
)

var (
	flagConfig   string
	flagWithRing bool
)

func main() {
	root := &cobra.Command{
		Use:           "relayd",
		Short:         "Domain relay broker for the market-data fabric",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "optional YAML config file")
	root.PersistentFlags().BoolVar(&flagWithRing, "ring", false, "also create the domain's shared-memory ring")

	root.AddCommand(
		domainCommand("market-data", codec.DomainMarketData),
		domainCommand("signals", codec.DomainSignal),
		domainCommand("execution", codec.DomainExecution),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfig)
	}
}

func domainCommand(name string, domain codec.Domain) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Run the %s relay broker", domain),
		RunE: func(cmd *cobra.Command, args []string) error {
			os.Exit(run(domain))
			return nil
		},
	}
}

func run(domain codec.Domain) int {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}
	log, err := buildLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}
	defer log.Sync()

	if err := selfTest(); err != nil {
		log.Error("protocol self-test failed", zap.Error(err))
		return exitProtocolTest
	}

	var socketPath string
	var broker *relay.Relay
	relayCfg := relay.Config{
		GapSnapshotThreshold: cfg.GapSnapshotThreshold,
		ConsumerIdleTimeout:  cfg.ConsumerIdleTimeout,
	}
	switch domain {
	case codec.DomainMarketData:
		socketPath = cfg.MarketDataPath()
		relayCfg.SocketPath = socketPath
		broker = relay.NewMarketData(relayCfg, log)
	case codec.DomainSignal:
		socketPath = cfg.SignalsPath()
		relayCfg.SocketPath = socketPath
		broker = relay.NewSignal(relayCfg, log)
	case codec.DomainExecution:
		socketPath = cfg.ExecutionPath()
		relayCfg.SocketPath = socketPath
		broker = relay.NewExecution(relayCfg, log)
	}

	var shm *ring.Ring
	if flagWithRing {
		shm, err = ring.Create(cfg.RingPath(domain.String()), cfg.RingCapacityLog2, cfg.RingMaxConsumers, log)
		if err != nil {
			log.Error("ring mapping failed", zap.Error(err))
			return exitRing
		}
		defer shm.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := broker.Serve(ctx); err != nil {
		log.Error("broker exited", zap.Error(err))
		return exitBind
	}
	log.Info("clean shutdown", zap.String("socket", socketPath))
	return exitOK
}

// selfTest round-trips a message through the codec before serving. A
// failure here means the binary cannot be trusted with live traffic.
func selfTest() error {
	hb := tlv.Heartbeat{Source: uint8(codec.SourceRelay), Sequence: 1}
	payload, err := hb.Encode()
	if err != nil {
		return err
	}
	msg, err := codec.NewBuilder(codec.DomainMarketData, codec.SourceRelay).
		AddTLV(tlv.TypeHeartbeat, payload).
		WithSequence(1).
		Build()
	if err != nil {
		return err
	}
	header, err := codec.ParseHeader(msg, codec.ChecksumEnforce)
	if err != nil {
		return err
	}
	if header.Sequence != 1 {
		return errors.New("self-test: sequence mismatch")
	}
	tlvs, err := codec.ParseTLVs(codec.Payload(msg))
	if err != nil {
		return err
	}
	if len(tlvs) != 1 || tlvs[0].Type != tlv.TypeHeartbeat || !bytes.Equal(tlvs[0].Payload, payload) {
		return errors.New("self-test: TLV round trip mismatch")
	}
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(strings.ToLower(level))
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}
