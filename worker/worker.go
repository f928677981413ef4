package worker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
	"hmmtagger.com/postag/logger"
	"hmmtagger.com/postag/pipeline"
	"hmmtagger.com/postag/rmq"
	"hmmtagger.com/postag/s3client"
	"hmmtagger.com/postag/tasks"
)

type Config struct {
	TaskMaxRetries int `envconfig:"POSTAG_TASK_RETRY_MAX" default:"3"`
}

// modelCatalog resolves the model a chunk task names.
type modelCatalog interface {
	Get(name string) (*pipeline.Entry, error)
}

// Worker tags the chunks named by queue messages. Deliveries are read on one goroutine,
// which resolves the chunk task and its model, and tagged on a goroutine per delivery.
type Worker struct {
	config       Config
	redis        redisTransactions
	s3           s3Transactions
	rmq          rmqTransactions
	dialRMQ      func() (rmqTransactions, error)
	models       modelCatalog
	ppln         pipeline.Pipeline
	inFlight     sync.WaitGroup
	workerLogger *zerolog.Logger
}

func New(registry *pipeline.Registry) (*Worker, error) {
	workerLogger := logger.NewLogger("Worker")
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		workerLogger.Err(err).Msg("Could not read worker configuration")
		return nil, err
	}
	tasksClient, err := tasks.NewClient()
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	s3Client, err := s3client.New()
	if err != nil {
		_ = tasksClient.Close()
		return nil, fmt.Errorf("s3: %w", err)
	}
	worker := &Worker{
		config:       config,
		redis:        &redisClientWrapper{tasksClient: &tasksClient},
		s3:           &s3ClientWrapper{s3Client: s3Client},
		dialRMQ:      dialRMQ,
		models:       registry,
		ppln:         pipeline.New(registry),
		workerLogger: &workerLogger,
	}
	if worker.rmq, err = worker.dialRMQ(); err != nil {
		_ = tasksClient.Close()
		return nil, fmt.Errorf("rmq: %w", err)
	}
	return worker, nil
}

func dialRMQ() (rmqTransactions, error) {
	rmqClient, err := rmq.NewClient()
	if err != nil {
		return nil, err
	}
	return &rmqClientWrapper{rmqClient: rmqClient}, nil
}

// Run consumes deliveries until the RMQ connection is lost and cannot be re-established.
// It waits for in-flight tasks and closes every client before returning.
func (worker *Worker) Run() error {
	defer worker.Close()
	for {
		var lost error
		select {
		case delivery, ok := <-worker.rmq.getDeliveriesCh():
			if ok {
				worker.dispatch(&delivery)
				continue
			}
			lost = errors.New("deliveries channel closed")
		case amqpErr := <-worker.rmq.getReqChanErrorsCh():
			lost = fmt.Errorf("request channel: %v", amqpErr)
		case amqpErr := <-worker.rmq.getRespChanErrorsCh():
			lost = fmt.Errorf("response channel: %v", amqpErr)
		}
		if err := worker.reconnectRMQ(lost); err != nil {
			return err
		}
	}
}

func (worker *Worker) reconnectRMQ(cause error) error {
	worker.workerLogger.Warn().Err(cause).Msg("Lost RMQ connection, reconnecting")
	conn, err := worker.dialRMQ()
	if err != nil {
		return fmt.Errorf("reconnect after %v: %w", cause, err)
	}
	worker.rmq.close()
	worker.rmq = conn
	worker.workerLogger.Info().Msg("Reconnected to RMQ")
	return nil
}

// dispatch fails chunks that name a model this process does not serve without entering
// the pipeline. Retrying them cannot succeed, so they are acknowledged.
func (worker *Worker) dispatch(delivery *amqp.Delivery) {
	conn := worker.rmq
	task, err := worker.createTask(delivery, conn)
	if err != nil {
		worker.workerLogger.Err(err).
			Str("message_id", delivery.MessageId).
			Str("body", string(delivery.Body)).
			Msg("Failed to create task for delivery")
		rejectLogger := worker.workerLogger.With().Str("message_id", delivery.MessageId).Logger()
		conn.rejectDelivery(delivery, &rejectLogger)
		return
	}
	if !task.chunkTask.TaskStatuses.Tagger.Status.Complete() {
		if _, err = worker.models.Get(task.chunkTask.Model); err != nil {
			task.taskLogger.Err(err).Msg("Chunk names a model this worker does not serve")
			if err = worker.redis.onTaskFailedPermanently(task, err.Error()); err != nil {
				task.taskLogger.Err(err).Msg("Failed to record unknown model")
				task.reject()
				return
			}
			task.finish()
			return
		}
	}
	worker.inFlight.Add(1)
	go func() {
		defer worker.inFlight.Done()
		worker.processMessage(task)
	}()
}

// Close waits for in-flight tasks before closing the clients they use.
func (worker *Worker) Close() {
	worker.inFlight.Wait()
	worker.rmq.close()
	if err := worker.redis.close(); err != nil {
		worker.workerLogger.Err(err).Msg("Failed to close redis clients")
	}
}
