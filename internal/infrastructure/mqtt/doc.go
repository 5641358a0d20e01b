// Package mqtt connects the core to the MQTT broker the vacuum bridge
// publishes on.
//
// Each config entry gets its own Client so that its verify_ssl flag can
// govern TLS verification of that connection. The client keeps track of
// its subscriptions and restores them after a reconnect, and publishes a
// retained presence message with a matching last will.
//
//	topics := mqtt.NewTopics(cfg.Deebot.TopicPrefix)
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.Subscribe(topics.State("E0001"), client.QoS(), handler)
//	client.Publish(topics.Command("E0001"), []byte(`{"command":"clean"}`), 1, false)
package mqtt
