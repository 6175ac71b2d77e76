// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bridge

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/relabs-tech/barometer/internal/listeners"
	"github.com/relabs-tech/barometer/internal/measurement"
)

// Facade is the operation surface served over the bridge.
type Facade interface {
	GetMeasurement(ctx context.Context) (measurement.Measurement, error)
	IsAvailable(ctx context.Context) measurement.AvailabilityResult
	StartMeasurementUpdates(ctx context.Context) error
	StopMeasurementUpdates(ctx context.Context)
	CheckPermissions(ctx context.Context) measurement.PermissionStatus
	RequestPermissions(ctx context.Context) measurement.PermissionStatus
	AddListener(eventName string, fn listeners.Listener) (*listeners.Handle, error)
	RemoveAllListeners()
}

// Server answers calls on the call topic and forwards measurement events.
type Server struct {
	api       Facade
	codec     Codec
	topics    Topics
	transport Transport
	logger    *log.Logger

	mu        sync.Mutex
	forwarder *listeners.Handle
	wg        sync.WaitGroup
}

// NewServer creates a server for api. A nil logger uses log.Default().
func NewServer(api Facade, transport Transport, codec Codec, prefix string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		api:       api,
		codec:     codec,
		topics:    NewTopics(prefix),
		transport: transport,
		logger:    logger,
	}
}

// Start subscribes to the call topic. Each call is served on its own
// goroutine since a permission prompt may block for a long time.
func (s *Server) Start() error {
	if err := s.transport.Subscribe(s.topics.Call(), s.onCall); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	s.logger.Printf("bridge: serving calls on %s (%s)", s.topics.Call(), s.codec.Name())
	return nil
}

// Stop unsubscribes, waits for calls in progress and drops the forwarder.
func (s *Server) Stop() {
	if err := s.transport.Unsubscribe(s.topics.Call()); err != nil {
		s.logger.Printf("bridge: unsubscribe: %v", err)
	}
	s.wg.Wait()

	s.mu.Lock()
	if s.forwarder != nil {
		s.forwarder.Remove()
		s.forwarder = nil
	}
	s.mu.Unlock()
}

func (s *Server) onCall(payload []byte) {
	var call Call
	if err := s.codec.Unmarshal(payload, &call); err != nil {
		s.logger.Printf("bridge: bad call payload: %v", err)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		reply := s.Dispatch(context.Background(), call)
		if call.ReplyTo == "" {
			return
		}
		data, err := s.codec.Marshal(reply)
		if err != nil {
			s.logger.Printf("bridge: encode reply %s: %v", call.ID, err)
			return
		}
		if err := s.transport.Publish(call.ReplyTo, data); err != nil {
			s.logger.Printf("bridge: publish reply %s: %v", call.ID, err)
		}
	}()
}

// Dispatch runs one call against the facade.
func (s *Server) Dispatch(ctx context.Context, call Call) (reply Reply) {
	reply.ID = call.ID
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("bridge: %s panicked: %v", call.Method, r)
			reply = Reply{ID: call.ID, Error: &CallError{Code: CodeInternal, Message: fmt.Sprint(r)}}
		}
	}()

	switch call.Method {
	case MethodGetMeasurement:
		m, err := s.api.GetMeasurement(ctx)
		if err != nil {
			reply.Error = toCallError(err)
			return reply
		}
		reply.Measurement = &m
	case MethodIsAvailable:
		a := s.api.IsAvailable(ctx)
		reply.Availability = &a
	case MethodStartMeasurementUpdates:
		reply.Error = toCallError(s.api.StartMeasurementUpdates(ctx))
	case MethodStopMeasurementUpdates:
		s.api.StopMeasurementUpdates(ctx)
	case MethodCheckPermissions:
		p := s.api.CheckPermissions(ctx)
		reply.Permissions = &p
	case MethodRequestPermissions:
		p := s.api.RequestPermissions(ctx)
		reply.Permissions = &p
	case MethodAddListener:
		reply.Error = toCallError(s.ensureForwarder(call.EventName))
	case MethodRemoveAllListeners:
		s.api.RemoveAllListeners()
		s.mu.Lock()
		s.forwarder = nil
		s.mu.Unlock()
		s.notifyCleared()
	default:
		reply.Error = &CallError{Code: CodeUnimplemented, Message: fmt.Sprintf("unknown method %q", call.Method)}
	}
	return reply
}

// ensureForwarder registers the single listener that publishes events.
func (s *Server) ensureForwarder(eventName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if eventName != listeners.EventMeasurement {
		return fmt.Errorf("%w: %q", listeners.ErrInvalidEvent, eventName)
	}
	if s.forwarder != nil {
		return nil
	}
	h, err := s.api.AddListener(eventName, s.forward)
	if err != nil {
		return err
	}
	s.forwarder = h
	return nil
}

// notifyCleared tells other clients that the forwarder is gone so the ones
// still listening can register again.
func (s *Server) notifyCleared() {
	data, err := s.codec.Marshal(struct{}{})
	if err != nil {
		s.logger.Printf("bridge: encode cleared notice: %v", err)
		return
	}
	if err := s.transport.Publish(s.topics.Cleared(), data); err != nil {
		s.logger.Printf("bridge: publish cleared notice: %v", err)
	}
}

// Forwarding reports whether measurement events are being published.
func (s *Server) Forwarding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forwarder != nil
}

func (s *Server) forward(m measurement.Measurement) {
	data, err := s.codec.Marshal(m)
	if err != nil {
		s.logger.Printf("bridge: encode measurement: %v", err)
		return
	}
	if err := s.transport.Publish(s.topics.Event(listeners.EventMeasurement), data); err != nil {
		s.logger.Printf("bridge: publish measurement: %v", err)
	}
}
