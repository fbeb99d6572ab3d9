package mq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// consumerPrefetch caps unacked deliveries per consumer channel.
const consumerPrefetch = 50

// InitQueues declares every queue in Queues. Leftover messages are kept so a
// restart does not drop notifications.
func InitQueues(mqConn *amqp.Connection) error {
	ch, err := NewChannel(mqConn)
	if err != nil {
		return err
	}
	defer ch.Close()

	for _, queue := range Queues {
		if err := DeclareQueue(ch, queue); err != nil {
			return err
		}
	}
	return nil
}

func NewMQConn(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func NewChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// NewConsumerChannel opens a channel with a bounded prefetch.
func NewConsumerChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := NewChannel(conn)
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(consumerPrefetch, 0, false); err != nil {
		ch.Close()
		return nil, err
	}
	return ch, nil
}

// DeclareQueue declares a durable queue on the default exchange.
func DeclareQueue(ch *amqp.Channel, queueName string) error {
	_, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	return err
}
