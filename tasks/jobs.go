package tasks

import (
	"hmmtagger.com/postag/redis"
)

const JobsDB redis.DB = 1

type JobTask struct {
	UserCanceled           bool `json:"user_canceled"`
	StopDocumentsOnFailure bool `json:"stop_documents_on_failure"`
}

type JobTasks struct {
	client redis.Client
}

func (tasks JobTasks) GetCached(redisKey string) (*JobTask, error) {
	var task JobTask
	if err := tasks.client.GetDocument(cachedPropertiesKey(redisKey), &task); err != nil {
		return nil, err
	}
	return &task, nil
}
