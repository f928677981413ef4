package tasks

import (
	"errors"
	"fmt"

	"hmmtagger.com/postag/redis"
)

// Client groups the task stores the tagger reads and updates, one redis database each.
type Client struct {
	Documents DocumentTasks
	Chunks    ChunkTasks
	Jobs      JobTasks
}

// NewClient connects to the documents, jobs and chunks databases. Connections already
// opened are closed when a later one fails.
func NewClient() (Client, error) {
	var tasksClient Client
	stores := []struct {
		db     redis.DB
		client *redis.Client
	}{
		{DocumentsDB, &tasksClient.Documents.client},
		{JobsDB, &tasksClient.Jobs.client},
		{ChunksDB, &tasksClient.Chunks.client},
	}
	for i, store := range stores {
		client, err := redis.NewClient(store.db)
		if err != nil {
			for _, opened := range stores[:i] {
				_ = opened.client.Close()
			}
			return Client{}, fmt.Errorf("redis db %d: %w", store.db, err)
		}
		*store.client = client
	}
	return tasksClient, nil
}

func (client *Client) Close() error {
	return errors.Join(
		client.Chunks.client.Close(),
		client.Documents.client.Close(),
		client.Jobs.client.Close(),
	)
}

func cachedPropertiesKey(redisKey string) string {
	return fmt.Sprintf("%s-cached-properties", redisKey)
}
