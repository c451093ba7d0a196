// Package mqtt provides the optional MQTT status bridge for the emulator.
//
// This package manages:
//   - Connection to a broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Republishing printer status, error and command events
//
// # Architecture
//
// The bridge is one-way: the emulator publishes, test fleets subscribe.
// It exists for setups where many test runners watch one shared emulator
// and polling the HTTP API from each runner is wasteful.
//
//	Emulator → MQTT Broker → Test runners
//
// # Security Considerations
//
//   - TLS is available for non-local brokers (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	bridge := mqtt.NewBridge(client, machine, historyLog, byte(cfg.MQTT.QoS))
//	go bridge.Run(ctx)
package mqtt
