package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	jsonpatch "github.com/evanphx/json-patch"
	"github.com/go-redis/redis/v8"
	"github.com/kelseyhightower/envconfig"
)

type DB int
type ReleaseLock func() error

var ErrNotFound = errors.New("redis document not found")

type Client struct {
	client         redis.UniversalClient
	lockExpiration time.Duration
}

var ctx = context.Background()

type Config struct {
	LockExpirationSeconds   int     `envconfig:"POSTAG_REDIS_LOCK_EXPIRATION" default:"3"`
	Host                    string  `envconfig:"POSTAG_REDIS_HOST" required:"true"`
	Port                    string  `envconfig:"POSTAG_REDIS_PORT" required:"true"`
	HASentinelPort          string  `envconfig:"POSTAG_REDIS_HA_SENTINEL_PORT" default:"26379"`
	HASentinelMasterName    string  `envconfig:"POSTAG_REDIS_HA_MASTER_NAME" default:"mymaster"`
	Password                string  `envconfig:"POSTAG_REDIS_AUTH_PASSWORD" default:"0"`
	AuthRequired            bool    `envconfig:"POSTAG_REDIS_AUTH_REQUIRED" default:"false"`
	HAMode                  bool    `envconfig:"POSTAG_REDIS_HA_MODE" default:"false"`
	HASentinelSocketTimeout float32 `envconfig:"POSTAG_REDIS_SOCKET_TIMEOUT" default:"0.5"`
}

func NewClient(db DB) (Client, error) {
	cfg, err := readEnvironment()
	if err != nil {
		return Client{}, err
	}
	var client redis.UniversalClient
	if cfg.HAMode {
		client = CreateFailoverClient(cfg, db)
	} else {
		client = CreateClient(cfg, db)
	}
	return Client{
		client:         client,
		lockExpiration: time.Duration(cfg.LockExpirationSeconds) * time.Second,
	}, nil
}

func CreateFailoverClient(cfg *Config, db DB) *redis.ClusterClient {
	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.HASentinelPort)
	timeout := time.Duration(float64(cfg.HASentinelSocketTimeout) * float64(time.Second))
	options := redis.FailoverOptions{
		SentinelAddrs: []string{addr},
		ReadTimeout:   timeout,
		WriteTimeout:  timeout,
		MaxRetries:    6,
		DB:            int(db),
		MasterName:    cfg.HASentinelMasterName,
	}
	if cfg.AuthRequired {
		options.Password = cfg.Password
	}
	return redis.NewFailoverClusterClient(&options)
}

func CreateClient(cfg *Config, db DB) *redis.Client {
	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	options := redis.Options{
		Addr:       addr,
		MaxRetries: 6,
		DB:         int(db),
	}
	if cfg.AuthRequired {
		options.Password = cfg.Password
	}
	return redis.NewClient(&options)
}

func (client *Client) getRaw(redisKey string) ([]byte, error) {
	b, err := client.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, redisKey)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetDocument decodes the JSON document stored at redisKey into doc. Fields doc does not
// declare are ignored.
func (client *Client) GetDocument(redisKey string, doc interface{}) error {
	raw, err := client.getRaw(redisKey)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return fmt.Errorf("decode %s: %w", redisKey, err)
	}
	return nil
}

// UpdateDocument locks redisKey, decodes the stored document into doc, runs update and
// writes back only what update changed. It returns the JSON merge patch that was applied,
// nil when nothing changed.
func (client *Client) UpdateDocument(redisKey string, doc interface{}, update func()) (patch []byte, err error) {
	releaseLock, err := client.Lock(redisKey)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := releaseLock(); err == nil {
			err = releaseErr
		}
	}()
	return client.UpdateDocumentLocked(redisKey, doc, update)
}

// UpdateDocumentLocked is UpdateDocument for callers already holding the lock of redisKey.
func (client *Client) UpdateDocumentLocked(redisKey string, doc interface{}, update func()) ([]byte, error) {
	raw, err := client.getRaw(redisKey)
	if err != nil {
		return nil, err
	}
	merged, patch, err := MergeUpdate(raw, doc, update)
	if err != nil || patch == nil {
		return patch, err
	}
	return patch, client.set(redisKey, merged)
}

// ApplyPatch merges patch into the document stored at redisKey. The caller is expected to
// hold the lock of the key.
func (client *Client) ApplyPatch(redisKey string, patch []byte) error {
	raw, err := client.getRaw(redisKey)
	if err != nil {
		return err
	}
	merged, err := jsonpatch.MergePatch(raw, patch)
	if err != nil {
		return fmt.Errorf("patch %s: %w", redisKey, err)
	}
	return client.set(redisKey, merged)
}

// MergeUpdate decodes raw into doc, runs update and merges the difference back into raw.
// Fields of raw that doc does not declare survive untouched.
func MergeUpdate(raw []byte, doc interface{}, update func()) (merged []byte, patch []byte, err error) {
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, nil, err
	}
	before, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, err
	}
	update()
	after, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, err
	}
	patch, err = jsonpatch.CreateMergePatch(before, after)
	if err != nil {
		return nil, nil, err
	}
	if string(patch) == "{}" {
		return raw, nil, nil
	}
	merged, err = jsonpatch.MergePatch(raw, patch)
	if err != nil {
		return nil, nil, err
	}
	return merged, patch, nil
}

func (client *Client) Lock(redisKey string) (ReleaseLock, error) {
	lockCl := redislock.New(client.client)
	str := redislock.LimitRetry(redislock.LinearBackoff(time.Second), 20)
	lockKey := fmt.Sprintf("lock:%s", redisKey)
	lock, err := lockCl.Obtain(ctx, lockKey, client.lockExpiration, &redislock.Options{RetryStrategy: str})
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", redisKey, err)
	}
	return func() error {
		return lock.Release(ctx)
	}, nil
}

func (client *Client) set(redisKey string, doc []byte) error {
	return client.client.Set(ctx, redisKey, doc, 0).Err()
}

func (client *Client) Close() error {
	return client.client.Close()
}

func readEnvironment() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
