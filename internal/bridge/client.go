// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bridge

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/barometer/internal/listeners"
	"github.com/relabs-tech/barometer/internal/measurement"
)

// Client calls a remote barometer through a Server. It has the same method
// set as the facade, so a session controller can drive it directly.
type Client struct {
	transport Transport
	codec     Codec
	topics    Topics
	replyTo   string
	timeout   time.Duration
	logger    *log.Logger
	registry  *listeners.Registry

	mu      sync.Mutex
	pending map[string]chan Reply

	subMu      sync.Mutex // serialises event subscription
	subscribed bool
}

// NewClient creates a client replying on the topic for clientID. A zero
// timeout means five seconds.
func NewClient(transport Transport, codec Codec, prefix, clientID string, timeout time.Duration, logger *log.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	topics := NewTopics(prefix)
	return &Client{
		transport: transport,
		codec:     codec,
		topics:    topics,
		replyTo:   topics.Reply(clientID),
		timeout:   timeout,
		logger:    logger,
		registry:  listeners.NewRegistry(),
		pending:   make(map[string]chan Reply),
	}
}

// Start subscribes to the reply topic.
func (c *Client) Start() error {
	if err := c.transport.Subscribe(c.replyTo, c.onReply); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	return nil
}

// Close unsubscribes from every topic the client used.
func (c *Client) Close() error {
	topics := []string{c.replyTo}
	c.subMu.Lock()
	if c.subscribed {
		topics = append(topics, c.topics.Event(listeners.EventMeasurement), c.topics.Cleared())
		c.subscribed = false
	}
	c.subMu.Unlock()
	c.registry.RemoveAllListeners()
	return c.transport.Unsubscribe(topics...)
}

func (c *Client) onReply(payload []byte) {
	var reply Reply
	if err := c.codec.Unmarshal(payload, &reply); err != nil {
		c.logger.Printf("bridge: bad reply payload: %v", err)
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[reply.ID]
	delete(c.pending, reply.ID)
	c.mu.Unlock()
	if !ok {
		return
	}
	ch <- reply
}

// onCleared runs when some caller removed the producer's listeners. The
// call goes out on its own goroutine since transports may not allow
// publishing from a message handler.
func (c *Client) onCleared([]byte) {
	go c.reassert()
}

// reassert registers the forwarder again while local listeners remain.
func (c *Client) reassert() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if !c.subscribed || c.registry.Len() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if _, err := c.Do(ctx, Call{Method: MethodAddListener, EventName: listeners.EventMeasurement}); err != nil {
		c.logger.Printf("bridge: re-register listener: %v", err)
	}
}

func (c *Client) onEvent(payload []byte) {
	var m measurement.Measurement
	if err := c.codec.Unmarshal(payload, &m); err != nil {
		c.logger.Printf("bridge: bad measurement payload: %v", err)
		return
	}
	c.registry.Dispatch(m)
}

// Do sends call and waits for its reply. A remote failure is returned as a
// *CallError, which unwraps to the matching local sentinel.
func (c *Client) Do(ctx context.Context, call Call) (Reply, error) {
	call.ID = uuid.NewString()
	call.ReplyTo = c.replyTo

	data, err := c.codec.Marshal(call)
	if err != nil {
		return Reply{}, fmt.Errorf("bridge: encode %s: %w", call.Method, err)
	}

	ch := make(chan Reply, 1)
	c.mu.Lock()
	c.pending[call.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, call.ID)
		c.mu.Unlock()
	}()

	if err := c.transport.Publish(c.topics.Call(), data); err != nil {
		return Reply{}, fmt.Errorf("bridge: publish %s: %w", call.Method, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		if reply.Error != nil {
			return reply, reply.Error
		}
		return reply, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case <-timer.C:
		return Reply{}, fmt.Errorf("%w: %s", ErrTimeout, call.Method)
	}
}

func (c *Client) GetMeasurement(ctx context.Context) (measurement.Measurement, error) {
	reply, err := c.Do(ctx, Call{Method: MethodGetMeasurement})
	if err != nil {
		return measurement.Measurement{}, err
	}
	if reply.Measurement == nil {
		return measurement.Measurement{}, fmt.Errorf("bridge: %s: empty reply", MethodGetMeasurement)
	}
	return *reply.Measurement, nil
}

// IsAvailable reports false when the producer cannot be reached.
func (c *Client) IsAvailable(ctx context.Context) measurement.AvailabilityResult {
	reply, err := c.Do(ctx, Call{Method: MethodIsAvailable})
	if err != nil || reply.Availability == nil {
		c.logger.Printf("bridge: %s: %v", MethodIsAvailable, err)
		return measurement.AvailabilityResult{}
	}
	return *reply.Availability
}

func (c *Client) StartMeasurementUpdates(ctx context.Context) error {
	_, err := c.Do(ctx, Call{Method: MethodStartMeasurementUpdates})
	return err
}

// StopMeasurementUpdates never fails; transport errors are logged.
func (c *Client) StopMeasurementUpdates(ctx context.Context) {
	if _, err := c.Do(ctx, Call{Method: MethodStopMeasurementUpdates}); err != nil {
		c.logger.Printf("bridge: %s: %v", MethodStopMeasurementUpdates, err)
	}
}

func (c *Client) CheckPermissions(ctx context.Context) measurement.PermissionStatus {
	return c.permissions(ctx, MethodCheckPermissions)
}

func (c *Client) RequestPermissions(ctx context.Context) measurement.PermissionStatus {
	return c.permissions(ctx, MethodRequestPermissions)
}

// permissions reports denied when the producer cannot be reached.
func (c *Client) permissions(ctx context.Context, method string) measurement.PermissionStatus {
	reply, err := c.Do(ctx, Call{Method: method})
	if err != nil || reply.Permissions == nil {
		c.logger.Printf("bridge: %s: %v", method, err)
		return measurement.PermissionStatus{Barometer: measurement.PermissionDenied}
	}
	return *reply.Permissions
}

// AddListener registers fn locally and makes sure the producer forwards
// events. Unknown event names are rejected before anything is sent.
func (c *Client) AddListener(eventName string, fn listeners.Listener) (*listeners.Handle, error) {
	h, err := c.registry.AddListener(eventName, fn)
	if err != nil {
		return nil, err
	}
	if err := c.subscribeEvents(eventName); err != nil {
		h.Remove()
		return nil, err
	}
	return h, nil
}

// OnMeasurement is AddListener for the measurement event.
func (c *Client) OnMeasurement(fn listeners.Listener) (*listeners.Handle, error) {
	return c.AddListener(listeners.EventMeasurement, fn)
}

func (c *Client) subscribeEvents(eventName string) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.subscribed {
		return nil
	}
	if err := c.transport.Subscribe(c.topics.Event(eventName), c.onEvent); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	if err := c.transport.Subscribe(c.topics.Cleared(), c.onCleared); err != nil {
		if uerr := c.transport.Unsubscribe(c.topics.Event(eventName)); uerr != nil {
			c.logger.Printf("bridge: unsubscribe: %v", uerr)
		}
		return fmt.Errorf("bridge: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if _, err := c.Do(ctx, Call{Method: MethodAddListener, EventName: eventName}); err != nil {
		if uerr := c.transport.Unsubscribe(c.topics.Event(eventName), c.topics.Cleared()); uerr != nil {
			c.logger.Printf("bridge: unsubscribe: %v", uerr)
		}
		return err
	}
	c.subscribed = true
	return nil
}

// RemoveAllListeners clears local listeners and the producer's registry.
// Other clients that still hold listeners register again when they see the
// cleared notice.
func (c *Client) RemoveAllListeners() {
	c.registry.RemoveAllListeners()

	c.subMu.Lock()
	wasSubscribed := c.subscribed
	c.subscribed = false
	c.subMu.Unlock()
	if wasSubscribed {
		if err := c.transport.Unsubscribe(c.topics.Event(listeners.EventMeasurement), c.topics.Cleared()); err != nil {
			c.logger.Printf("bridge: unsubscribe: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if _, err := c.Do(ctx, Call{Method: MethodRemoveAllListeners}); err != nil {
		c.logger.Printf("bridge: %s: %v", MethodRemoveAllListeners, err)
	}
}
