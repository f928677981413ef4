package worker

import (
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
	"hmmtagger.com/postag/rmq"
	"hmmtagger.com/postag/tasks"
)

type rmqTransactions interface {
	pingSequencer(task *Task, message Message) error
	acknowledgeDelivery(delivery *amqp.Delivery) error
	rejectDelivery(delivery *amqp.Delivery, rejectLogger *zerolog.Logger)
	getDeliveriesCh() <-chan amqp.Delivery
	getReqChanErrorsCh() <-chan *amqp.Error
	getRespChanErrorsCh() <-chan *amqp.Error
	close()
}

type rmqClientWrapper struct {
	rmqClient *rmq.Client
}

func (wrapper *rmqClientWrapper) close() {
	wrapper.rmqClient.Close()
}

func (wrapper *rmqClientWrapper) getDeliveriesCh() <-chan amqp.Delivery {
	return wrapper.rmqClient.Deliveries
}

func (wrapper *rmqClientWrapper) getReqChanErrorsCh() <-chan *amqp.Error {
	return wrapper.rmqClient.ReqChanErrors
}

func (wrapper *rmqClientWrapper) getRespChanErrorsCh() <-chan *amqp.Error {
	return wrapper.rmqClient.RespChanErrors
}

// sequencerPublishing addresses the sequencer as the tagger, keeping the original message
// id so the sequencer can correlate the reply.
func sequencerPublishing(delivery *amqp.Delivery, message Message) (amqp.Publishing, error) {
	message.Sender = tasks.TaggerTaskName
	body, err := json.Marshal(message)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: delivery.MessageId,
		Body:          body,
	}, nil
}

func (wrapper *rmqClientWrapper) pingSequencer(task *Task, message Message) error {
	publishing, err := sequencerPublishing(task.delivery, message)
	if err != nil {
		return err
	}
	return wrapper.rmqClient.SendMessageToSequencer(publishing)
}

func (wrapper *rmqClientWrapper) acknowledgeDelivery(delivery *amqp.Delivery) error {
	return delivery.Ack(false)
}

// rejectDelivery requeues a delivery the first time it fails and drops it the second time.
func (wrapper *rmqClientWrapper) rejectDelivery(delivery *amqp.Delivery, rejectLogger *zerolog.Logger) {
	requeue := !delivery.Redelivered
	rejectLogger.Info().Bool("requeue", requeue).Msg("Rejecting delivery")
	if err := delivery.Reject(requeue); err != nil {
		rejectLogger.Err(err).Bool("requeue", requeue).Msg("Failed to reject delivery")
	}
}
