// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bridge

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Transport is the part of an MQTT connection the bridge uses.
type Transport interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler func(payload []byte)) error
	Unsubscribe(topics ...string) error
}

type mqttTransport struct {
	client mqtt.Client
}

// NewMQTTTransport wraps a connected paho client. Messages use QoS 0.
func NewMQTTTransport(client mqtt.Client) Transport {
	return &mqttTransport{client: client}
}

func (t *mqttTransport) Publish(topic string, payload []byte) error {
	token := t.client.Publish(topic, 0, false, payload)
	token.Wait()
	return token.Error()
}

func (t *mqttTransport) Subscribe(topic string, handler func(payload []byte)) error {
	token := t.client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (t *mqttTransport) Unsubscribe(topics ...string) error {
	token := t.client.Unsubscribe(topics...)
	token.Wait()
	return token.Error()
}

// Connect dials broker with clientID, as every tool does at start-up.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	return client, nil
}
