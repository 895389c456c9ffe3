// File: cmd/udpsend/main.go
// Author: momentics <momentics@gmail.com>
//
// udpsend blasts a fixed number of datagrams at a destination through
// an asynchronous sender port and prints the final counters.

package main

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/momentics/hioload-udp/api"
	"github.com/momentics/hioload-udp/control"
	"github.com/momentics/hioload-udp/packet"
	"github.com/momentics/hioload-udp/reactor"
	"github.com/momentics/hioload-udp/udp"
)

type options struct {
	Bind        string        `long:"bind" default:"0.0.0.0:0" description:"Local bind address"`
	Dest        string        `long:"dest" required:"true" description:"Destination address"`
	Count       int           `long:"count" default:"1000" description:"Number of datagrams to send"`
	Size        int           `long:"size" default:"512" description:"Payload size in bytes"`
	Interval    time.Duration `long:"interval" default:"0s" description:"Delay between datagrams"`
	Broadcast   bool          `long:"broadcast" description:"Enable SO_BROADCAST"`
	NonBlocking bool          `long:"nonblocking" description:"Enable the non-blocking fast path"`
	Verbose     bool          `short:"v" long:"verbose" description:"Debug logging"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts options) error {
	logger := zap.NewNop()
	if opts.Verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
	}

	bind, err := netip.ParseAddrPort(opts.Bind)
	if err != nil {
		return fmt.Errorf("parse bind address %q: %w", opts.Bind, err)
	}
	dest, err := netip.ParseAddrPort(opts.Dest)
	if err != nil {
		return fmt.Errorf("parse destination address %q: %w", opts.Dest, err)
	}

	loop := reactor.NewLoop(logger)
	go loop.Run()
	defer loop.Stop()

	port := udp.NewSenderPort(loop, udp.SenderConfig{
		BindAddr:    bind,
		Broadcast:   opts.Broadcast,
		NonBlocking: opts.NonBlocking,
	}, logger)

	metrics := control.NewMetricsRegistry()
	port.AttachMetrics(metrics)

	if err := port.Open(); err != nil {
		return err
	}
	fmt.Printf("sending %d datagrams %s -> %s\n", opts.Count, port.Addr(), dest)

	pool := packet.NewPool()
	payload := make([]byte, opts.Size)
	for i := range payload {
		payload[i] = byte(i)
	}

	start := time.Now()
	for i := 0; i < opts.Count; i++ {
		pp := pool.Get()
		pp.SetUDP(packet.UDP{SrcAddr: port.Addr(), DstAddr: dest})
		pp.SetData(payload)
		port.Write(pp)
		pp.Release()

		if opts.Interval > 0 {
			time.Sleep(opts.Interval)
		}
	}

	closed := make(chan struct{})
	if port.AsyncClose(api.CloseHandlerFunc(func(api.Port) { close(closed) })) {
		select {
		case <-closed:
		case <-time.After(10 * time.Second):
			return fmt.Errorf("timed out waiting for port close")
		}
	}
	port.Destroy()

	stats := port.Stats()
	elapsed := time.Since(start)
	fmt.Printf("sent=%d queued=%d fastpath=%d elapsed=%s rate=%.0f/s\n",
		stats.Sent, stats.SentQueued, stats.Sent-stats.SentQueued,
		elapsed, float64(stats.Sent)/elapsed.Seconds())
	return nil
}
