package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dotside-studios/rfid-agent/capture"
	"github.com/dotside-studios/rfid-agent/config"
	"github.com/dotside-studios/rfid-agent/console"
	"github.com/dotside-studios/rfid-agent/rfid"
	"github.com/dotside-studios/rfid-agent/server"
)

// reportSink is a buffered hand-off from the observer to one slow consumer.
type reportSink struct {
	name    string
	ch      chan rfid.TagReport
	dropped atomic.Uint64
}

type Agent struct {
	Logger  *slog.Logger
	Config  *config.Config
	Session *rfid.Session
	Reader  *serialReader
	Server  *server.Server

	// Console, when set before Start, echoes tag reports on request.
	Console *console.Console

	baseLogger *slog.Logger
	recorder   *capture.Recorder
	sinks      []*reportSink

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	serverErr chan error
	running   bool
}

func NewAgent(cfg *config.Config, driver rfid.Driver, logger *slog.Logger) *Agent {
	session := rfid.NewSession(driver, rfid.Options{
		Logger:      logger,
		PowerPolicy: cfg.Reader.PowerPolicy,
	})
	return &Agent{
		Logger:     logger.With("component", "agent"),
		Config:     cfg,
		Session:    session,
		Reader:     newSerialReader(session),
		baseLogger: logger,
		serverErr:  make(chan error, 1),
	}
}

// ServerErr reports a server that stopped on its own.
func (a *Agent) ServerErr() <-chan error {
	return a.serverErr
}

// Start connects the reader, applies the configured profile, begins
// streaming and serves clients until Stop.
func (a *Agent) Start(ctx context.Context) error {
	if a.running {
		return errors.New("agent is already running")
	}

	profile, err := a.Config.Profile()
	if err != nil {
		return err
	}

	address := a.Config.Reader.Address
	if err := a.Reader.Connect(ctx, address); err != nil {
		return fmt.Errorf("connect to reader %s: %w", address, err)
	}
	if features, ok := a.Session.FeatureSet(); ok {
		a.Logger.Info("reader connected",
			"address", address,
			"model", features.ModelName,
			"region", features.Region,
			"firmware", features.FirmwareVersion,
			"antennas", features.AntennaCount)
	}

	if err := a.Reader.ApplyProfile(ctx, profile); err != nil {
		a.disconnect(ctx)
		return fmt.Errorf("apply reader profile: %w", err)
	}

	if path := a.Config.Capture.Path; path != "" {
		rec, err := capture.Open(path, a.Session.ID())
		if err != nil {
			a.disconnect(ctx)
			return err
		}
		a.recorder = rec
		a.Logger.Info("capturing tag reports", "path", path)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	buffer := a.Config.Reader.Buffer
	a.sinks = nil
	serverSink := a.addSink("server", buffer)
	if a.recorder != nil {
		a.consume(runCtx, a.addSink("capture", buffer), func(r rfid.TagReport) {
			if err := a.recorder.Record(r); err != nil {
				a.Logger.Error("capture write failed", "error", err)
			}
		})
	}
	if a.Console != nil {
		a.consume(runCtx, a.addSink("console", buffer), a.Console.ShowReport)
	}

	a.Session.SetDispatchErrorHandler(func(err error) {
		a.Logger.Error("tag dispatch failed", "error", err)
	})
	a.Session.SetObserver(a.observe)

	a.Server = server.New(server.Config{
		Reader:         a.Reader,
		Reports:        serverSink.ch,
		Addr:           a.Config.Server.Addr(),
		APISecret:      a.Config.Server.APISecret,
		EnableMDNS:     a.Config.Server.EnableMDNS,
		RequestTimeout: a.Config.Reader.RequestTimeout,
		Logger:         a.baseLogger,
	})
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.Server.Start(runCtx); err != nil {
			a.Logger.Error("server stopped", "error", err)
			select {
			case a.serverErr <- err:
			default:
			}
		}
	}()

	if err := a.Reader.Start(ctx); err != nil {
		a.Logger.Error("failed to start inventory", "error", err)
	}

	a.running = true
	return nil
}

// observe runs on the driver's delivery goroutine and must not block.
func (a *Agent) observe(report rfid.TagReport) {
	for _, sink := range a.sinks {
		select {
		case sink.ch <- report:
		default:
			if n := sink.dropped.Add(1); n == 1 || n%1000 == 0 {
				a.Logger.Warn("report buffer full, dropping", "sink", sink.name, "dropped", n, "epc", report.EpcHex())
			}
		}
	}
}

func (a *Agent) addSink(name string, buffer int) *reportSink {
	sink := &reportSink{name: name, ch: make(chan rfid.TagReport, buffer)}
	a.sinks = append(a.sinks, sink)
	return sink
}

func (a *Agent) consume(ctx context.Context, sink *reportSink, fn func(rfid.TagReport)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				// flush what was queued before the observer was removed
				for {
					select {
					case r := <-sink.ch:
						fn(r)
					default:
						return
					}
				}
			case r := <-sink.ch:
				fn(r)
			}
		}
	}()
}

// Dropped returns how many reports each sink has discarded.
func (a *Agent) Dropped() map[string]uint64 {
	out := make(map[string]uint64, len(a.sinks))
	for _, sink := range a.sinks {
		out[sink.name] = sink.dropped.Load()
	}
	return out
}

// Stop halts inventory, shuts the server down and disconnects the reader.
func (a *Agent) Stop(ctx context.Context) {
	if !a.running {
		a.Logger.Info("agent is not running")
		return
	}
	a.Logger.Info("stopping agent")

	if err := a.Reader.Stop(ctx); err != nil {
		a.Logger.Warn("stop inventory failed", "error", err)
	}
	a.Session.SetObserver(nil)

	a.cancel()
	a.wg.Wait()

	a.disconnect(ctx)

	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.Logger.Warn("close capture file failed", "error", err)
		}
		a.Logger.Info("capture closed", "records", a.recorder.Count())
		a.recorder = nil
	}

	a.running = false
	a.Logger.Info("agent stopped")
}

func (a *Agent) disconnect(ctx context.Context) {
	if err := a.Reader.Disconnect(ctx); err != nil {
		a.Logger.Warn("disconnect failed", "error", err)
	}
}
