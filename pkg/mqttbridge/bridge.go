// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mqttbridge mirrors the amplifier state to an MQTT broker and
// accepts command lines from it.
//
// Topics, relative to the configured prefix:
//
//	<prefix>/state    retained JSON snapshot, republished on every change
//	<prefix>/status   "online" / "offline" (last will)
//	<prefix>/command  command lines, same syntax as the TCP protocol
//	<prefix>/reply    reply to each command
package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/rotelstat/pkg/rotel"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	commandTimeout = 5 * time.Second
	publishTimeout = 5 * time.Second
	updateBuffer   = 16
)

// Executor runs one command line
type Executor interface {
	Exec(ctx context.Context, line string) (string, error)
}

// Source provides state snapshots and change notifications
type Source interface {
	Snapshot(ctx context.Context) (rotel.Snapshot, error)
	Subscribe(fn func(rotel.Snapshot)) func()
}

type Options struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
}

// PublishFunc sends one message to the broker
type PublishFunc func(topic string, retained bool, payload []byte) error

type Bridge struct {
	exec    Executor
	src     Source
	opts    Options
	log     *logrus.Entry
	client  mqtt.Client
	publish PublishFunc
	updates chan rotel.Snapshot
}

func New(exec Executor, src Source, opts Options, log *logrus.Entry) *Bridge {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	opts.Topic = strings.TrimSuffix(opts.Topic, "/")
	b := &Bridge{
		exec:    exec,
		src:     src,
		opts:    opts,
		log:     log,
		updates: make(chan rotel.Snapshot, updateBuffer),
	}
	b.publish = b.publishMQTT
	return b
}

func (b *Bridge) topic(leaf string) string {
	return b.opts.Topic + "/" + leaf
}

func (b *Bridge) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.opts.Broker)
	if b.opts.Username != "" {
		opts.SetUsername(b.opts.Username)
		opts.SetPassword(b.opts.Password)
	}
	opts.SetClientID(b.opts.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOrderMatters(false)
	opts.SetWill(b.topic("status"), StatusOffline, 1, true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		b.log.Info("Connected to MQTT Broker")
		c.Subscribe(b.topic("command"), 1, func(_ mqtt.Client, msg mqtt.Message) {
			b.handleCommand(msg)
		})
		b.publishStatus(StatusOnline)
		b.resync()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.log.Warnf("MQTT connection lost: %v", err)
	})
	return opts
}

// Run connects to the broker and publishes state changes until ctx is done
func (b *Bridge) Run(ctx context.Context) error {
	b.client = mqtt.NewClient(b.clientOptions())
	if token := b.client.Connect(); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		b.log.Warn("Could not connect to MQTT initially, will retry in background: ", token.Error())
	}

	unsubscribe := b.src.Subscribe(b.enqueue)
	defer unsubscribe()

	b.pump(ctx)

	b.publishStatus(StatusOffline)
	b.client.Disconnect(250)
	return nil
}

// enqueue runs on the event loop and must not block
func (b *Bridge) enqueue(snap rotel.Snapshot) {
	select {
	case b.updates <- snap:
	default:
		b.log.Debug("MQTT update queue full, dropping state change")
	}
}

func (b *Bridge) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-b.updates:
			b.publishState(snap)
		}
	}
}

// resync publishes the current state, used after (re)connecting
func (b *Bridge) resync() {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	snap, err := b.src.Snapshot(ctx)
	if err != nil {
		b.log.Warnf("Failed to read state for MQTT: %v", err)
		return
	}
	b.enqueue(snap)
}

func (b *Bridge) publishState(snap rotel.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		b.log.Errorf("Failed to marshal state: %v", err)
		return
	}
	b.log.Debugf("MQTT PUB %s: %s", b.topic("state"), payload)
	if err := b.publish(b.topic("state"), true, payload); err != nil {
		b.log.Warnf("Failed to publish state: %v", err)
	}
}

func (b *Bridge) publishStatus(status string) {
	if err := b.publish(b.topic("status"), true, []byte(status)); err != nil {
		b.log.Warnf("Failed to publish status: %v", err)
	}
}

func (b *Bridge) handleCommand(msg mqtt.Message) {
	line := strings.Join(strings.Fields(string(msg.Payload())), " ")
	if line == "" {
		return
	}
	b.log.Infof("Received command: %q", line)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	reply, err := b.exec.Exec(ctx, line)
	if err != nil {
		b.log.Errorf("Command %q failed: %v", line, err)
		return
	}
	if err := b.publish(b.topic("reply"), false, []byte(reply)); err != nil {
		b.log.Warnf("Failed to publish reply: %v", err)
	}
}

func (b *Bridge) publishMQTT(topic string, retained bool, payload []byte) error {
	if b.client == nil || !b.client.IsConnectionOpen() {
		return fmt.Errorf("not connected")
	}
	token := b.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}
