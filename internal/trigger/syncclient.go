// Package trigger implements the distributed trigger-synchronization
// client: a state machine that registers with a trigger master,
// reports readiness, and edge-detects trigger arrivals over four NATS
// subjects (register/trigger/status/heartbeat).
package trigger

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/fastdaq/daqcore/internal/config"
	"github.com/fastdaq/daqcore/internal/constants"
	"github.com/fastdaq/daqcore/internal/interfaces"
)

// defaultTriggerTimeout is how long statusLoop waits without contact
// before it considers the trigger master unreachable, absent a
// trigger_timeout override from LoadConfig.
const defaultTriggerTimeout = 2 * time.Second

// subjects holds the four logical channels a register reply resolves
// to: "<trigger>;<status>;<heartbeat>;" semicolon-delimited.
type subjects struct {
	trigger   string
	status    string
	heartbeat string
}

// SyncClient generates a UUID-based client name on construction,
// performs a registration handshake in InitSockets, runs the
// status/heartbeat/restart loops once LaunchThreads is called, and
// lets HasTrigger edge-detect trigger arrivals for the caller.
type SyncClient struct {
	name            string
	nc              *nats.Conn
	registerSubject string

	mu        sync.Mutex
	sub       subjects
	triggerCh *nats.Subscription

	connected  atomic.Bool
	ready      atomic.Bool
	sentReady  atomic.Bool
	gotTrigger atomic.Bool
	threadLive atomic.Bool

	lastContact atomic.Int64 // UnixNano

	triggerTimeout time.Duration

	logger interfaces.Logger
	done   chan struct{}
}

// New creates a SyncClient with a freshly generated UUID client name.
// logger should already be scoped (e.g. via logging.Logger.WithFields
// "component", "sync") so the loops below don't rebuild that tag
// themselves.
func New(nc *nats.Conn, registerSubject string, logger interfaces.Logger) *SyncClient {
	return &SyncClient{
		name:            uuid.NewString() + ";",
		nc:              nc,
		registerSubject: registerSubject,
		logger:          logger,
		triggerTimeout:  defaultTriggerTimeout,
	}
}

// LoadConfig reads trigger_timeout (seconds) from cfg, overriding the
// default staleness window statusLoop uses to compute Connected. Call
// before LaunchThreads; the loops read triggerTimeout without a lock.
func (c *SyncClient) LoadConfig(cfg *config.Tree) {
	seconds := cfg.Float64("trigger_timeout", defaultTriggerTimeout.Seconds())
	c.triggerTimeout = time.Duration(seconds * float64(time.Second))
}

// Name returns the client's registered name, including its trailing
// semicolon separator.
func (c *SyncClient) Name() string { return c.name }

// InitSockets performs the blocking registration handshake: it sends
// the client's name to registerSubject and retries non-blocking style
// (request with a short timeout, loop, sleep) until a reply arrives,
// then parses the reply into the three runtime subjects and subscribes
// to the trigger subject.
func (c *SyncClient) InitSockets() error {
	var reply *nats.Msg
	var err error
	for {
		reply, err = c.nc.Request(c.registerSubject, []byte(c.name), constants.LightSleep*5)
		if err == nil {
			break
		}
		if c.logger != nil {
			c.logger.Debugf("registration attempt failed: %v", err)
		}
		time.Sleep(constants.HeavySleep)
	}

	parts := strings.Split(string(reply.Data), ";")
	if len(parts) < 3 {
		return fmt.Errorf("sync: malformed registration reply %q", string(reply.Data))
	}
	c.mu.Lock()
	c.sub = subjects{trigger: parts[0], status: parts[1], heartbeat: parts[2]}
	c.mu.Unlock()

	triggerSub, err := c.nc.Subscribe(parts[0], func(*nats.Msg) {
		// Mirrors sync_client.cxx's StatusLoop ready_&&sent_ready_
		// branch on trigger arrival: clear both readiness flags and
		// refresh last contact so the next round re-sends READY and
		// the connection isn't mistaken for stale while awaiting it.
		c.ready.Store(false)
		c.sentReady.Store(false)
		c.lastContact.Store(time.Now().UnixNano())
		c.gotTrigger.Store(true)
	})
	if err != nil {
		return fmt.Errorf("sync: subscribe to trigger subject %s: %w", parts[0], err)
	}

	c.mu.Lock()
	c.triggerCh = triggerSub
	c.mu.Unlock()

	c.connected.Store(true)
	c.lastContact.Store(time.Now().UnixNano())
	return nil
}

// LaunchThreads starts the status, heartbeat, and restart loops.
func (c *SyncClient) LaunchThreads() {
	if c.threadLive.Load() {
		return
	}
	c.threadLive.Store(true)
	c.done = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); c.statusLoop() }()
	go func() { defer wg.Done(); c.heartbeatLoop() }()
	go func() { defer wg.Done(); c.restartLoop() }()

	go func() {
		wg.Wait()
		close(c.done)
	}()
}

// StopThreads signals every loop to exit and waits for them.
func (c *SyncClient) StopThreads() {
	if !c.threadLive.Load() {
		return
	}
	c.threadLive.Store(false)
	<-c.done
}

// SetReady marks the client ready to take triggers. Calling code drives
// this once its worker fleet has armed, so statusLoop can send READY.
func (c *SyncClient) SetReady(ready bool) {
	c.ready.Store(ready)
	if !ready {
		c.sentReady.Store(false)
	}
}

// HasTrigger reports whether a trigger arrived since the last call,
// clearing the flag — an edge-triggered read.
func (c *SyncClient) HasTrigger() bool {
	return c.gotTrigger.Swap(false)
}

// Connected reports whether the registration handshake has completed
// and no disconnect has been detected since.
func (c *SyncClient) Connected() bool { return c.connected.Load() }

// statusLoop runs a four-state machine:
// not connected -> heavy sleep; connected but not ready -> mark
// last contact and wait; ready but ack not sent -> send READY and poll
// for the ack; ready and acked -> nothing further (trigger arrival is
// handled by the subscription callback registered in InitSockets).
//
// connected is recomputed on every iteration from how long it has been
// since lastContact, against triggerTimeout — not just polled
// periodically by restartLoop — so a stalled master is detected within
// one status-loop tick rather than one restart-loop tick.
func (c *SyncClient) statusLoop() {
	for c.threadLive.Load() {
		last := time.Unix(0, c.lastContact.Load())
		c.connected.Store(time.Since(last) < c.triggerTimeout)

		switch {
		case !c.connected.Load():
			time.Sleep(constants.HeavySleep)

		case !c.ready.Load():
			c.lastContact.Store(time.Now().UnixNano())
			time.Sleep(constants.HeavySleep)

		case !c.sentReady.Load():
			c.mu.Lock()
			statusSubject := c.sub.status
			c.mu.Unlock()

			reply, err := c.nc.Request(statusSubject, []byte("READY"), constants.LightSleep*5)
			if err != nil {
				if c.logger != nil {
					c.logger.Debugf("READY ack not received: %v", err)
				}
				time.Sleep(constants.LightSleep)
				continue
			}
			if string(reply.Data) == "ACK" {
				c.sentReady.Store(true)
				c.lastContact.Store(time.Now().UnixNano())
			}

		default:
			time.Sleep(constants.HeavySleep)
		}
	}
}

// heartbeatLoop publishes the client's name on the heartbeat subject
// every HeartbeatEveryNTicks heavy-sleep periods while connected,
// tolerating publish failure.
func (c *SyncClient) heartbeatLoop() {
	ticks := 0
	for c.threadLive.Load() {
		time.Sleep(constants.HeavySleep)
		if !c.connected.Load() {
			continue
		}
		ticks++
		if ticks < constants.HeartbeatEveryNTicks {
			continue
		}
		ticks = 0

		c.mu.Lock()
		hbSubject := c.sub.heartbeat
		c.mu.Unlock()
		if hbSubject == "" {
			continue
		}
		if err := c.nc.Publish(hbSubject, []byte(c.name)); err != nil && c.logger != nil {
			c.logger.Debugf("heartbeat publish failed: %v", err)
		}
	}
}

// restartLoop watches the connected flag statusLoop maintains and, once
// it goes false, reinitializes the connection: disconnect, rebuild
// every subject, then re-run the registration handshake.
func (c *SyncClient) restartLoop() {
	for c.threadLive.Load() {
		time.Sleep(constants.HeavySleep)
		if c.connected.Load() {
			continue
		}

		if c.logger != nil {
			c.logger.Errorf("lost contact with trigger master, reinitializing")
		}
		c.disconnect()
		if err := c.InitSockets(); err != nil && c.logger != nil {
			c.logger.Errorf("reinit failed: %v", err)
		}
	}
}

func (c *SyncClient) disconnect() {
	c.connected.Store(false)
	c.ready.Store(false)
	c.sentReady.Store(false)
	c.gotTrigger.Store(false)

	c.mu.Lock()
	if c.triggerCh != nil {
		_ = c.triggerCh.Unsubscribe()
		c.triggerCh = nil
	}
	c.sub = subjects{}
	c.mu.Unlock()
}

// Close stops every loop and unsubscribes, releasing all protocol
// state. It does not close the underlying NATS connection, which may
// be shared.
func (c *SyncClient) Close() error {
	c.StopThreads()
	c.disconnect()
	return nil
}
