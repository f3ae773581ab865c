// Package emitter publishes run telemetry to an MQTT broker.
//
// Every saved edge image produces a FrameEvent on <prefix>/<client_id>/frames
// and the end-of-run Report is published, retained, on
// <prefix>/<client_id>/summary. Payloads are MessagePack.
//
// The run loop never waits for the network: ObserveEdge hands the event to a
// single-slot mailbox drained by a publisher goroutine, and an event that is
// still pending when the next one arrives is dropped and counted.
package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	cameracanny "github.com/e7canasta/camera-canny"
	"github.com/e7canasta/camera-canny/internal/config"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// MQTTEmitter publishes frame events and the run summary
type MQTTEmitter struct {
	cfg    config.MQTTConfig
	runID  string
	Client mqtt.Client

	box *mailbox
	wg  sync.WaitGroup

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool

	// index is only touched by the run loop (ObserveEdge)
	index uint64
}

// NewMQTTEmitter creates an emitter for one run
func NewMQTTEmitter(cfg config.MQTTConfig, runID string) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:       cfg,
		runID:     runID,
		box:       newMailbox(),
		published: make(map[string]uint64),
	}
}

// Connect establishes the broker connection and starts the publisher.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("emitter: mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.cfg.ClientID,
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker,
		)
	}

	e.Client = mqtt.NewClient(opts)

	slog.Info("emitter: connecting to mqtt broker", "broker", e.cfg.Broker)
	if err := waitToken(ctx, e.Client.Connect(), connectTimeout); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	e.setConnected(true)

	e.wg.Add(1)
	go e.publishLoop()
	return nil
}

// ObserveRaw is a no-op; only saved images are published.
func (e *MQTTEmitter) ObserveRaw(*cameracanny.Frame) {}

// ObserveEdge queues a FrameEvent for g without blocking.
func (e *MQTTEmitter) ObserveEdge(g *cameracanny.Gray) {
	if g.Released() {
		return
	}
	e.index++
	ev := newFrameEvent(e.runID, e.index, g, time.Now())
	if e.box.put(ev) {
		slog.Debug("emitter: previous frame event dropped", "index", ev.Index)
	}
}

func (e *MQTTEmitter) publishLoop() {
	defer e.wg.Done()

	topic := framesTopic(e.cfg.TopicPrefix, e.cfg.ClientID)
	for ev := e.box.take(); ev != nil; ev = e.box.take() {
		payload, err := EncodeFrameEvent(ev)
		if err != nil {
			e.countError()
			slog.Warn("emitter: frame event not published", "index", ev.Index, "error", err)
			continue
		}
		if err := e.publish(topic, 0, false, payload); err != nil {
			slog.Debug("emitter: frame event not published", "index", ev.Index, "error", err)
		}
	}
}

// PublishSummary publishes r as a retained message.
func (e *MQTTEmitter) PublishSummary(r cameracanny.Report) error {
	payload, err := EncodeReport(r)
	if err != nil {
		e.countError()
		return err
	}
	return e.publish(summaryTopic(e.cfg.TopicPrefix, e.cfg.ClientID), e.cfg.QoS, true, payload)
}

func (e *MQTTEmitter) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	token := e.Client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("emitter: published",
		"topic", topic,
		"qos", qos,
		"size", len(payload),
	)
	return nil
}

// Disconnect flushes the pending frame event and closes the connection.
// Safe to call without Connect.
func (e *MQTTEmitter) Disconnect() error {
	e.box.close()
	e.wg.Wait()

	// Disconnect also stops a connect retry loop that never succeeded.
	if e.Client != nil {
		e.Client.Disconnect(250) // 250ms grace period
		if e.isConnected() {
			slog.Info("emitter: mqtt disconnected")
		}
	}
	e.setConnected(false)
	return nil
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
	Dropped   uint64
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
		Dropped:   e.box.drops(),
	}
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// waitToken waits for t, ctx or the timeout, whichever comes first.
func waitToken(ctx context.Context, t mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timeout after %s", timeout)
	}
}
