package tasks

import (
	"encoding/json"

	"hmmtagger.com/postag/redis"
)

const DocumentsDB redis.DB = 0

type DocumentTask struct {
	FailedTasks  []string            `json:"failed_tasks"`
	FailedChunks map[string][]string `json:"failed_chunks"`
}

// DocumentTaskCached is the read-mostly copy of a document task kept under the
// cached-properties key.
type DocumentTaskCached struct {
	DocInfo     map[string]interface{} `json:"document_info"`
	FailedTasks []string               `json:"failed_tasks"`
	JobID       string                 `json:"job_id"`
	WorkType    string                 `json:"work_type"`
}

// MarkFailed records that chunk failed in the named task.
func (task *DocumentTask) MarkFailed(taskName, chunk string) {
	task.FailedTasks = append(task.FailedTasks, taskName)
	if task.FailedChunks == nil {
		task.FailedChunks = map[string][]string{}
	}
	task.FailedChunks[chunk] = append(task.FailedChunks[chunk], taskName)
}

type DocumentTasks struct {
	client redis.Client
}

func (tasks DocumentTasks) Get(redisKey string) (*DocumentTask, error) {
	var task DocumentTask
	if err := tasks.client.GetDocument(redisKey, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (tasks DocumentTasks) GetCached(redisKey string) (*DocumentTaskCached, error) {
	var task DocumentTaskCached
	if err := tasks.client.GetDocument(cachedPropertiesKey(redisKey), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Update applies updateFunc to the document task and mirrors the change of the cached
// fields into its cached-properties document.
func (tasks DocumentTasks) Update(redisKey string, updateFunc func(task *DocumentTask)) (err error) {
	releaseLock, err := tasks.client.Lock(redisKey)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = releaseLock()
			return
		}
		err = releaseLock()
	}()

	var task DocumentTask
	var before []string
	patch, err := tasks.client.UpdateDocumentLocked(redisKey, &task, func() {
		before = append([]string(nil), task.FailedTasks...)
		updateFunc(&task)
	})
	if err != nil || patch == nil {
		return err
	}
	cachedPatch, err := cachedFieldsPatch(before, task.FailedTasks)
	if err != nil || cachedPatch == nil {
		return err
	}
	return tasks.client.ApplyPatch(cachedPropertiesKey(redisKey), cachedPatch)
}

// cachedFieldsPatch returns the merge patch of the cached document fields, nil when they
// did not change.
func cachedFieldsPatch(before, after []string) ([]byte, error) {
	if equalStrings(before, after) {
		return nil, nil
	}
	return json.Marshal(struct {
		FailedTasks []string `json:"failed_tasks"`
	}{after})
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
