package s3client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/kelseyhightower/envconfig"
	"hmmtagger.com/postag/logger"
	"hmmtagger.com/postag/types"
)

var (
	// ErrNotText is returned when a chunk object is not valid UTF-8.
	ErrNotText = errors.New("object is not UTF-8 text")
	// ErrTooLarge is returned when a chunk object exceeds POSTAG_S3_MAX_TEXT_BYTES.
	ErrTooLarge = errors.New("object too large")
)

const resultsSuffix = "pos_tagger_results.json"

type EnvironmentConfig struct {
	BucketName   string `envconfig:"POSTAG_S3_BUCKET" required:"true"`
	Env          string `envconfig:"POSTAG_ENV" default:"prod"`
	Region       string `envconfig:"POSTAG_AWS_REGION" required:"true"`
	AwsEndpoint  string `envconfig:"POSTAG_AWS_ENDPOINT_URL" default:""`
	AccessKeyID  string `envconfig:"POSTAG_AWS_ACCESS_ID" default:""`
	AccessKey    string `envconfig:"POSTAG_AWS_ACCESS_KEY" default:""`
	MaxTextBytes int64  `envconfig:"POSTAG_S3_MAX_TEXT_BYTES" default:"33554432"`
}

type connectFunc func(env EnvironmentConfig) (s3iface.S3API, error)

// Client reads chunk texts from and writes tagging results to one bucket. A failed request
// reconnects once and is retried, which covers expired instance credentials.
type Client struct {
	env     EnvironmentConfig
	connect connectFunc

	mu  sync.RWMutex
	api s3iface.S3API
}

var clientLogger = logger.NewLogger("S3Client")
var sdkLogger = logger.NewLogger("S3-SDK")

func New() (*Client, error) {
	var env EnvironmentConfig
	if err := envconfig.Process("", &env); err != nil {
		clientLogger.Err(err).Caller().Msg("Failed to get proper variables from environment")
		return nil, err
	}
	return newClient(env, connect)
}

func newClient(env EnvironmentConfig, connect connectFunc) (*Client, error) {
	api, err := connect(env)
	if err != nil {
		return nil, err
	}
	return &Client{env: env, connect: connect, api: api}, nil
}

// ResultsKey is where the tagging results of a chunk are stored.
func ResultsKey(docID, chunkID string) string {
	return path.Join("processed", "documents", docID, "chunks", chunkID, chunkID+"."+resultsSuffix)
}

// DownloadText fetches a chunk text. Objects over the configured size or not valid UTF-8
// are refused before they reach the tagger.
func (client *Client) DownloadText(ctx context.Context, key string) (string, error) {
	keyLogger := clientLogger.With().Str("key", key).Str("bucket", client.env.BucketName).Logger()
	var body []byte
	err := client.do(func(api s3iface.S3API) error {
		out, err := api.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(client.env.BucketName),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		var r io.Reader = out.Body
		if client.env.MaxTextBytes > 0 {
			r = io.LimitReader(out.Body, client.env.MaxTextBytes+1)
		}
		body, err = io.ReadAll(r)
		return err
	})
	if err != nil {
		keyLogger.Err(err).Msg("Failed to download text")
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	if client.env.MaxTextBytes > 0 && int64(len(body)) > client.env.MaxTextBytes {
		return "", fmt.Errorf("%w: %s is over %d bytes", ErrTooLarge, key, client.env.MaxTextBytes)
	}
	if !utf8.Valid(body) {
		return "", fmt.Errorf("%w: %s", ErrNotText, key)
	}
	keyLogger.Debug().Msgf("Downloaded %d bytes", len(body))
	return string(body), nil
}

// UploadResults stores a tagging response as JSON under key.
func (client *Client) UploadResults(ctx context.Context, key string, resp types.TaggingResponse) error {
	input, err := resultsUploadInput(client.env.BucketName, key, resp)
	if err != nil {
		return err
	}
	err = client.do(func(api s3iface.S3API) error {
		if _, err := input.Body.Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, err := api.PutObjectWithContext(ctx, input)
		return err
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	clientLogger.Debug().Str("key", key).Int("sentences", len(resp.Sentences)).Msg("Uploaded results")
	return nil
}

func resultsUploadInput(bucket, key string, resp types.TaggingResponse) (*s3.PutObjectInput, error) {
	buf, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	return &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String("application/json"),
		Body:        bytes.NewReader(buf),
	}, nil
}

func (client *Client) do(op func(api s3iface.S3API) error) error {
	client.mu.RLock()
	api := client.api
	client.mu.RUnlock()

	err := op(api)
	if err == nil || !reconnectable(err) {
		return err
	}
	clientLogger.Warn().Err(err).Msg("S3 request failed, reconnecting")
	fresh, connErr := client.connect(client.env)
	if connErr != nil {
		return fmt.Errorf("%v (reconnect: %w)", err, connErr)
	}
	client.mu.Lock()
	client.api = fresh
	client.mu.Unlock()
	return op(fresh)
}

// reconnectable is false for errors a new session cannot fix.
func reconnectable(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound", request.CanceledErrorCode:
			return false
		}
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// awsConfig uses static credentials when POSTAG_AWS_ACCESS_ID is set and the SDK default
// chain (instance role, shared config) otherwise. The endpoint override applies in dev only.
func awsConfig(env EnvironmentConfig) *aws.Config {
	cfg := aws.NewConfig().
		WithRegion(env.Region).
		WithMaxRetries(4).
		WithLogLevel(aws.LogDebug).
		WithLogger(aws.LoggerFunc(func(args ...interface{}) {
			sdkLogger.Debug().Msg(fmt.Sprint(args...))
		}))
	if len(env.AccessKeyID) > 0 {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(env.AccessKeyID, env.AccessKey, ""))
	}
	if env.Env == "dev" && len(env.AwsEndpoint) > 0 {
		cfg = cfg.WithEndpoint(env.AwsEndpoint).WithS3ForcePathStyle(true)
	}
	return cfg
}

func connect(env EnvironmentConfig) (s3iface.S3API, error) {
	sess, err := session.NewSession(awsConfig(env))
	if err != nil {
		clientLogger.Err(err).Msg("Could not initialize S3 session")
		return nil, err
	}
	if _, err = sts.New(sess).GetCallerIdentity(&sts.GetCallerIdentityInput{}); err != nil {
		clientLogger.Err(err).Msg("S3 session has no usable credentials")
		return nil, fmt.Errorf("verify credentials: %w", err)
	}
	clientLogger.Info().Str("bucket", env.BucketName).Msg("S3 session initialized")
	return s3.New(sess), nil
}
