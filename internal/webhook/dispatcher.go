// Package webhook pushes world events to resident webhook URLs. Delivery is
// fire-and-forget: a bounded queue feeds worker goroutines, a full queue
// drops the notification, and failures are logged once and never retried.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Notification kinds delivered to webhooks.
const (
	KindSpeechHeard    = "speech_heard"
	KindPain           = "pain"
	KindHealthCritical = "health_critical"
	KindArrested       = "arrested"
	KindReleased       = "released"
	KindWageReceived   = "wage_received"
	KindItemReceived   = "item_received"
	KindReflection     = "reflection_prompt"
)

// Notification is the JSON body POSTed to a resident's webhook URL.
type Notification struct {
	Kind       string         `json:"kind"`
	ResidentID string         `json:"resident_id"`
	WorldSecs  int64          `json:"world_secs"`
	Data       map[string]any `json:"data,omitempty"`
}

type delivery struct {
	url  string
	body []byte
}

// Dispatcher runs the delivery workers. Enqueue is called from the scheduler
// goroutine; throttle state lives there too, so no lock guards it.
type Dispatcher struct {
	client *http.Client
	log    *zap.Logger
	queue  chan delivery
	wg     sync.WaitGroup

	lastSpeech   map[string]time.Time // undirected speech_heard, per resident
	lastCritical map[string]time.Time

	failures prometheus.Counter
}

const (
	queueSize        = 512
	workers          = 4
	deliveryTimeout  = 5 * time.Second
	speechThrottle   = time.Second
	criticalThrottle = 10 * time.Second
)

func NewDispatcher(log *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		client:       &http.Client{Timeout: deliveryTimeout},
		log:          log,
		queue:        make(chan delivery, queueSize),
		lastSpeech:   make(map[string]time.Time),
		lastCritical: make(map[string]time.Time),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// SetFailureCounter wires the delivery-failure counter. Must be called before
// any Enqueue.
func (d *Dispatcher) SetFailureCounter(c prometheus.Counter) { d.failures = c }

// Enqueue queues a notification for delivery. Undirected speech and repeated
// health-critical alerts are throttled per resident; directed speech always
// goes through.
func (d *Dispatcher) Enqueue(url string, n Notification, directed bool) {
	if url == "" {
		return
	}
	now := time.Now()
	switch n.Kind {
	case KindSpeechHeard:
		if !directed {
			if now.Sub(d.lastSpeech[n.ResidentID]) < speechThrottle {
				return
			}
			d.lastSpeech[n.ResidentID] = now
		}
	case KindHealthCritical:
		if now.Sub(d.lastCritical[n.ResidentID]) < criticalThrottle {
			return
		}
		d.lastCritical[n.ResidentID] = now
	}

	body, err := json.Marshal(n)
	if err != nil {
		return
	}
	select {
	case d.queue <- delivery{url: url, body: body}:
	default:
		d.log.Debug("webhook queue full, dropping", zap.String("kind", n.Kind))
	}
}

// Forget clears throttle state for a resident that left the world.
func (d *Dispatcher) Forget(residentID string) {
	delete(d.lastSpeech, residentID)
	delete(d.lastCritical, residentID)
}

// Close stops accepting work and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	close(d.queue)
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for dl := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, dl.url, bytes.NewReader(dl.body))
		if err != nil {
			cancel()
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := d.client.Do(req)
		if err != nil {
			d.log.Debug("webhook delivery failed", zap.String("url", dl.url), zap.Error(err))
			if d.failures != nil {
				d.failures.Inc()
			}
			cancel()
			continue
		}
		if resp.StatusCode >= 300 && d.failures != nil {
			d.failures.Inc()
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
	}
}
