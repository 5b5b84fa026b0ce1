// Package emitter publishes finished integration results to an MQTT broker.
package emitter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"quadsched/internal/scheduler"
	"quadsched/pkg/config"
)

var ErrNotConnected = errors.New("mqtt not connected")

// ResultMessage is the JSON document published for each run.
type ResultMessage struct {
	RunID           string    `json:"run_id"`
	Function        string    `json:"function"`
	LowerBound      float64   `json:"lower_bound"`
	UpperBound      float64   `json:"upper_bound"`
	Points          int64     `json:"points"`
	Intensity       int       `json:"intensity"`
	Value           float64   `json:"value"`
	ElapsedSeconds  float64   `json:"elapsed_seconds"`
	Chunks          int64     `json:"chunks"`
	Workers         int       `json:"workers"`
	ChunksPerWorker float64   `json:"chunks_per_worker_mean"`
	ChunksStdDev    float64   `json:"chunks_per_worker_stddev"`
	FinishedAt      time.Time `json:"finished_at"`
}

// NewResultMessage flattens a run into its published form.
func NewResultMessage(p *config.Problem, res scheduler.Result, finished time.Time) ResultMessage {
	workers := len(res.PerWorker) - 1
	if workers < 0 {
		workers = 0
	}
	return ResultMessage{
		RunID:           res.RunID,
		Function:        p.Function.String(),
		LowerBound:      p.Lower,
		UpperBound:      p.Upper,
		Points:          p.Points,
		Intensity:       p.Intensity,
		Value:           res.Value,
		ElapsedSeconds:  res.Elapsed.Seconds(),
		Chunks:          res.Chunks,
		Workers:         workers,
		ChunksPerWorker: res.Balance.Mean,
		ChunksStdDev:    res.Balance.StdDev,
		FinishedAt:      finished.UTC(),
	}
}

// MQTTEmitter publishes results to <topic>/<run_id>.
type MQTTEmitter struct {
	cfg    config.MQTTConfig
	client mqtt.Client
	log    *slog.Logger

	mu        sync.RWMutex
	connected bool
	published uint64
}

func NewMQTTEmitter(cfg config.MQTTConfig, logger *slog.Logger) *MQTTEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTEmitter{cfg: cfg, log: logger}
}

// Connect establishes the broker connection.
func (e *MQTTEmitter) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		e.log.Info("mqtt connection established", "broker", e.cfg.Broker, "client_id", e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		e.log.Warn("mqtt connection lost", "error", err, "broker", e.cfg.Broker)
	}

	e.client = mqtt.NewClient(opts)
	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	e.setConnected(true)
	return nil
}

// Publish sends one result document.
func (e *MQTTEmitter) Publish(msg ResultMessage) error {
	if !e.isConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	topic := fmt.Sprintf("%s/%s", e.cfg.Topic, msg.RunID)
	token := e.client.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()
	e.log.Debug("result published", "topic", topic, "qos", e.cfg.QoS, "size", len(payload))
	return nil
}

// Disconnect closes the broker connection.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
	}
	e.setConnected(false)
}

// Published is the number of results sent.
func (e *MQTTEmitter) Published() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.published
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}
