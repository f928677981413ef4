package tasks

import (
	"hmmtagger.com/postag/redis"
)

const ChunksDB redis.DB = 2

// TaggerTaskName is the name of this service in chunk task statuses and document failure lists.
const TaggerTaskName = "pos_tagger"

type TaskStatus string

const (
	TaskStatusProcessing       TaskStatus = "processing"
	TaskStatusSubmitted        TaskStatus = "submitted"
	TaskStatusStarted          TaskStatus = "started"
	TaskStatusFailed           TaskStatus = "failed"
	TaskStatusCompletedSuccess TaskStatus = "completed - success"
	TaskStatusCompletedFailure TaskStatus = "completed - failure"
	TaskStatusCanceled         TaskStatus = "canceled"
)

func (s TaskStatus) Complete() bool {
	return s == TaskStatusCompletedSuccess || s == TaskStatusCompletedFailure || s == TaskStatusCanceled
}

func (s TaskStatus) Submitted() bool {
	return s == TaskStatusSubmitted || s == TaskStatusStarted || s == TaskStatusProcessing
}

// ChunkTask is the part of a chunk document the tagger reads and writes. Model names the
// registered model to tag the chunk with; empty selects the only one.
type ChunkTask struct {
	DocID        string            `json:"document_id"`
	JobID        string            `json:"job_id"`
	TextFileKey  string            `json:"text_file_key"`
	Model        string            `json:"tagger_model,omitempty"`
	TaskStatuses ChunkTaskStatuses `json:"task_statuses"`
}

type ChunkTaskStatuses struct {
	Tagger ChunkTaskInfo `json:"pos_tagger"`
}

type ChunkTaskInfo struct {
	ResultsFileKey   string     `json:"results_file_key"`
	ModelFingerprint string     `json:"model_fingerprint,omitempty"`
	StartedAt        *string    `json:"started_at"`
	CompletedAt      *string    `json:"completed_at"`
	Attempts         int        `json:"attempts"`
	Status           TaskStatus `json:"status"`
	Dependencies     []string   `json:"dependencies"`
	ErrorMessages    []string   `json:"error_messages"`
}

type ChunkTasks struct {
	client redis.Client
}

func (tasks ChunkTasks) Get(redisKey string) (*ChunkTask, error) {
	var task ChunkTask
	if err := tasks.client.GetDocument(redisKey, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Update applies updateFunc to the stored chunk task under its lock. Fields of the chunk
// document owned by other services are left as stored.
func (tasks ChunkTasks) Update(redisKey string, updateFunc func(task *ChunkTask)) error {
	var task ChunkTask
	_, err := tasks.client.UpdateDocument(redisKey, &task, func() {
		updateFunc(&task)
	})
	return err
}
