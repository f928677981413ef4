package rmq

import (
	"fmt"
	"net"
	"net/url"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
	"hmmtagger.com/postag/logger"
)

type Config struct {
	Host                    string `envconfig:"POSTAG_RMQ_HOST" required:"true"`
	Port                    string `envconfig:"POSTAG_RMQ_PORT" required:"true"`
	Username                string `envconfig:"POSTAG_RMQ_USERNAME" required:"true"`
	Password                string `envconfig:"POSTAG_RMQ_PASSWORD" required:"true"`
	Exchange                string `envconfig:"POSTAG_RMQ_EXCHANGE" default:"postag-default-exchange"`
	MaxParallelRequestCount int    `envconfig:"POSTAG_RMQ_MAX_PARALLEL_REQUESTS" default:"5"`
	TaggerTaskQueue         string `envconfig:"POSTAG_RMQ_TAGGER_TASK_QUEUE" default:"pos_tagger"`
	SequencerTaskQueue      string `envconfig:"POSTAG_RMQ_SEQUENCER_TASK_QUEUE" required:"true"`
}

type Client struct {
	Deliveries     <-chan amqp.Delivery
	ReqChanErrors  <-chan *amqp.Error
	RespChanErrors <-chan *amqp.Error
	config         Config
	reqConn        *amqp.Connection
	respConn       *amqp.Connection
	respChannel    *amqp.Channel
	rmqLogger      *zerolog.Logger
}

func NewClient() (*Client, error) {
	rmqLogger := logger.NewLogger("RMQ client")
	var err error
	var config Config
	if err = envconfig.Process("", &config); err != nil {
		rmqLogger.Error().Err(err).Msg("Could not read env config")
		return nil, err
	}

	amqpURL := GetURL(config)
	rmqLogger.Info().Str("queue", config.TaggerTaskQueue).Msg("Connecting to RMQ")
	respConn, respChannel, err := setup(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed connection: %w", err)
	}
	reqConn, reqChannel, err := setup(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed connection: %w", err)
	}

	q, err := reqChannel.QueueDeclarePassive(
		config.TaggerTaskQueue, // name
		true,                   // durable
		false,                  // delete when unused
		false,                  // exclusive
		false,                  // no-wait
		nil,                    // arguments
	)
	if err != nil {
		return nil, err
	}
	if err := reqChannel.QueueBind(
		config.TaggerTaskQueue,
		config.TaggerTaskQueue,
		config.Exchange,
		false,
		nil); err != nil {
		return nil, err
	}
	if err := reqChannel.Qos(config.MaxParallelRequestCount, 0, false); err != nil {
		return nil, fmt.Errorf("qos: %w", err)
	}

	deliveries, err := reqChannel.Consume(
		q.Name,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume deliveries: %w", err)
	}
	reqChanErrors := reqChannel.NotifyClose(make(chan *amqp.Error))
	respChanErrors := respChannel.NotifyClose(make(chan *amqp.Error))

	return &Client{
		Deliveries:     deliveries,
		ReqChanErrors:  reqChanErrors,
		RespChanErrors: respChanErrors,
		config:         config,
		reqConn:        reqConn,
		respConn:       respConn,
		respChannel:    respChannel,
		rmqLogger:      &rmqLogger,
	}, nil
}

func (c *Client) SendMessageToSequencer(msg amqp.Publishing) error {
	return c.respChannel.Publish(
		c.config.Exchange,
		c.config.SequencerTaskQueue,
		false,
		false,
		msg)
}

func (c *Client) Close() {
	_ = c.reqConn.Close()
	_ = c.respConn.Close()
}

// GetURL builds the AMQP URL of config with the credentials escaped.
func GetURL(config Config) string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(config.Username, config.Password),
		Host:   net.JoinHostPort(config.Host, config.Port),
	}
	return u.String()
}

func setup(amqpURL string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, err
	}
	return conn, ch, nil
}
