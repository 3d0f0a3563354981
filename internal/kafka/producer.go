// Package kafka wires the service to the Apache Kafka message broker.
// Alert sweeps publish trigger events here; the notification consumer
// reads them back and fans out to email and Telegram.
package kafka

import (
	"strings"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// TopicAlertEvents carries alert trigger events from the sweep to the
// notification consumer.
const TopicAlertEvents = "ALERT_EVENTS"

func brokerList() []string {
	brokers := strings.Split(viper.GetString("KAFKA_BROKERS"), ",")
	if len(brokers) == 0 || brokers[0] == "" {
		brokers = []string{"localhost:9092"}
	}
	return brokers
}

// SetupProducer initializes a synchronous Kafka producer. Broker
// addresses come from KAFKA_BROKERS (comma-separated, default
// localhost:9092).
//
// The producer is configured for synchronous operation so the alert
// sweep only marks a rule as notified once the event is acknowledged.
func SetupProducer() sarama.SyncProducer {
	brokers := brokerList()

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForLocal

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create Kafka producer")
	}

	logrus.WithField("brokers", brokers).Info("Kafka producer initialized")
	return producer
}

// Publish sends one message to a topic and waits for the broker ack.
func Publish(producer sarama.SyncProducer, topic string, payload []byte) error {
	_, _, err := producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(payload),
	})
	return err
}
