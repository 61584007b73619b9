// Package mqtt connects AccessGuard Core to the MQTT broker its RFID readers
// publish to.
//
// One configured topic T (default "rfid/readings") defines the rest:
//
//	T              card readings from devices
//	T/control      admin commands
//	T/response     replies to readings
//	T/control/response
//	               replies to admin commands
//	T/status       retained online/offline status, also the LWT
//
// Brokers normally listen on 8883 with TLS. MQTTTLSConfig supplies the CA
// used to verify the broker and an optional client certificate.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().Readings(), 1, handle)
package mqtt
