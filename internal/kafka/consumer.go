package kafka

import (
	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// SetupConsumer starts consuming a topic from partition 0 and feeds each
// message to handler on a background goroutine. The returned stop
// function closes the partition consumer and its parent.
func SetupConsumer(topic string, handler func([]byte)) (stop func(), err error) {
	brokers := brokerList()

	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(brokers, config)
	if err != nil {
		return nil, err
	}

	partitionConsumer, err := consumer.ConsumePartition(topic, 0, sarama.OffsetNewest)
	if err != nil {
		consumer.Close()
		return nil, err
	}

	logrus.WithField("topic", topic).Info("Started consuming from topic")
	go func() {
		for {
			select {
			case msg, ok := <-partitionConsumer.Messages():
				if !ok {
					return
				}
				handler(msg.Value)
			case err, ok := <-partitionConsumer.Errors():
				if !ok {
					return
				}
				logrus.WithError(err).WithField("topic", topic).Error("Error consuming")
			}
		}
	}()

	return func() {
		partitionConsumer.Close()
		consumer.Close()
	}, nil
}
