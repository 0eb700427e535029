// Package devmon watches the host's default audio output and reports when
// the managed sink engages or disengages as the active route.
package devmon

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lpetrelli/autopause/internal/domain"
	"go.uber.org/zap"
)

// PulseMonitor observes PulseAudio via `pactl subscribe` and re-reads the
// default sink after each server or sink event. Verdicts are deduplicated
// and delivered on a capacity-1 channel with last-transition-wins
// semantics, so a burst of noisy notifications collapses into the single
// latest pending transition.
type PulseMonitor struct {
	logger     *zap.Logger
	sinkPrefix string

	transitions chan domain.DeviceTransition

	// injectable for tests
	subscribe   func(ctx context.Context) (io.ReadCloser, error)
	defaultSink func(ctx context.Context) (string, error)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup // tracks the reader goroutines
	last    *bool          // last engaged verdict, suppresses duplicates
}

// NewPulseMonitor creates a monitor backed by the pactl command-line client
func NewPulseMonitor(logger *zap.Logger, sinkPrefix string) *PulseMonitor {
	m := &PulseMonitor{
		logger:      logger,
		sinkPrefix:  sinkPrefix,
		transitions: make(chan domain.DeviceTransition, 1),
	}
	m.subscribe = pactlSubscribe
	m.defaultSink = pactlDefaultSink
	return m
}

// Start begins monitoring. It blocks until the context is cancelled or the
// event stream cannot be opened.
func (m *PulseMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true

	monitorCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	stream, err := m.subscribe(monitorCtx)
	if err != nil {
		m.logger.Error("Failed to open device event stream", zap.Error(err))
		m.mu.Lock()
		m.running = false
		m.cancel = nil
		m.mu.Unlock()
		return fmt.Errorf("device event stream: %w", err)
	}

	m.logger.Info("Device monitor started", zap.String("sink", m.sinkPrefix))

	// Emit the verdict for the route that is already active at startup,
	// otherwise a device engaged before the daemon came up is never seen.
	m.evaluate(monitorCtx)

	// Unblock the reader when the context ends; closing the stream is the
	// only way out of a blocking Read.
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		<-monitorCtx.Done()
		if err := stream.Close(); err != nil {
			m.logger.Debug("Event stream close failed", zap.Error(err))
		}
	}()

	m.wg.Add(1)
	go m.readLoop(monitorCtx, stream)

	<-monitorCtx.Done()

	m.logger.Info("Device monitor stopped")
	return monitorCtx.Err()
}

// Stop gracefully stops the monitor
func (m *PulseMonitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.running = false
	m.mu.Unlock()

	// Wait for producers before closing the channel to avoid a send on a
	// closed channel.
	m.wg.Wait()
	close(m.transitions)

	m.logger.Info("Device monitor shutdown complete")
	return nil
}

// Transitions returns the channel on which normalized transitions are
// delivered
func (m *PulseMonitor) Transitions() <-chan domain.DeviceTransition {
	return m.transitions
}

// readLoop consumes raw subscribe events and re-evaluates the default sink
// after each relevant one
func (m *PulseMonitor) readLoop(ctx context.Context, stream io.ReadCloser) {
	defer m.wg.Done()

	scanner := bufio.NewScanner(stream)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Text()
		if !relevantEvent(line) {
			continue
		}
		m.evaluate(ctx)
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		m.logger.Error("Device event stream failed", zap.Error(err))
	}
}

// relevantEvent reports whether a pactl subscribe line can indicate a
// default-sink change. Server events carry default-sink updates; sink
// events cover the managed sink itself appearing or vanishing.
func relevantEvent(line string) bool {
	return strings.Contains(line, "' on server") || strings.Contains(line, "' on sink")
}

// evaluate queries the current default sink and publishes the verdict if
// it differs from the previous one
func (m *PulseMonitor) evaluate(ctx context.Context) {
	sink, err := m.defaultSink(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("Default sink query failed", zap.Error(err))
		}
		return
	}

	engaged := strings.HasPrefix(sink, m.sinkPrefix)

	m.mu.Lock()
	if m.last != nil && *m.last == engaged {
		m.mu.Unlock()
		return
	}
	m.last = &engaged
	m.mu.Unlock()

	transition := domain.TransitionDisengaged
	if engaged {
		transition = domain.TransitionEngaged
	}

	m.publish(transition)
	m.logger.Info("Output route changed",
		zap.String("defaultSink", sink),
		zap.Stringer("transition", transition))
}

// publish delivers a transition with last-wins coalescing: if the consumer
// has not picked up the pending transition yet, the newer one replaces it.
func (m *PulseMonitor) publish(t domain.DeviceTransition) {
	select {
	case m.transitions <- t:
		return
	default:
	}

	// Channel full: drop the stale pending transition, then retry. This
	// is the only producer, so the second send cannot block.
	select {
	case <-m.transitions:
		m.logger.Debug("Coalesced pending transition")
	default:
	}
	select {
	case m.transitions <- t:
	default:
	}
}
