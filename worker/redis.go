package worker

import (
	"time"

	"hmmtagger.com/postag/tasks"
)

const RFC3339Micro = "2006-01-02T15:04:05.000000-07:00"

func getFormattedNow() *string {
	now := time.Now().UTC().Format(RFC3339Micro)
	return &now
}

type redisTransactions interface {
	getChunkTask(redisKey string) (*tasks.ChunkTask, error)
	getJobTask(task *Task) (*tasks.JobTask, error)
	getDocTask(task *Task) (*tasks.DocumentTaskCached, error)
	onTaskStarted(task *Task) error
	onTaskCancelled(task *Task, errorMessages ...string) error
	onTaskFailedPermanently(task *Task, errorMessage string) error
	onTaskFailedWithError(task *Task, err error) error
	onTaskComplete(task *Task) error
	close() error
}

type redisClientWrapper struct {
	tasksClient *tasks.Client
}

func (wrapper *redisClientWrapper) close() error {
	return wrapper.tasksClient.Close()
}

func (wrapper *redisClientWrapper) updateStatus(task *Task, update func(info *tasks.ChunkTaskInfo)) error {
	return wrapper.tasksClient.Chunks.Update(task.redisKey, func(chunkTask *tasks.ChunkTask) {
		update(&chunkTask.TaskStatuses.Tagger)
	})
}

func (wrapper *redisClientWrapper) onTaskStarted(task *Task) error {
	return wrapper.updateStatus(task, markStarted)
}

func (wrapper *redisClientWrapper) onTaskCancelled(task *Task, errorMessages ...string) error {
	return wrapper.updateStatus(task, func(info *tasks.ChunkTaskInfo) {
		markCancelled(info, errorMessages...)
	})
}

// onTaskFailedPermanently fails the document as well as the chunk, so the sequencer stops
// scheduling its other chunks when the job asks for that.
func (wrapper *redisClientWrapper) onTaskFailedPermanently(task *Task, errorMessage string) error {
	err := wrapper.tasksClient.Documents.Update(task.chunkTask.DocID, func(docTask *tasks.DocumentTask) {
		docTask.MarkFailed(tasks.TaggerTaskName, task.redisKey)
	})
	if err != nil {
		return err
	}
	return wrapper.updateStatus(task, func(info *tasks.ChunkTaskInfo) {
		markFailedPermanently(info, errorMessage)
	})
}

func (wrapper *redisClientWrapper) onTaskFailedWithError(task *Task, err error) error {
	return wrapper.updateStatus(task, func(info *tasks.ChunkTaskInfo) {
		markFailed(info, err)
	})
}

func (wrapper *redisClientWrapper) onTaskComplete(task *Task) error {
	return wrapper.updateStatus(task, func(info *tasks.ChunkTaskInfo) {
		markComplete(info, task.resultsKey(), task.modelFingerprint)
	})
}

func (wrapper *redisClientWrapper) getChunkTask(redisKey string) (*tasks.ChunkTask, error) {
	return wrapper.tasksClient.Chunks.Get(redisKey)
}

func (wrapper *redisClientWrapper) getJobTask(task *Task) (*tasks.JobTask, error) {
	return wrapper.tasksClient.Jobs.GetCached(task.chunkTask.JobID)
}

func (wrapper *redisClientWrapper) getDocTask(task *Task) (*tasks.DocumentTaskCached, error) {
	return wrapper.tasksClient.Documents.GetCached(task.chunkTask.DocID)
}

func markStarted(info *tasks.ChunkTaskInfo) {
	info.Status = tasks.TaskStatusStarted
	info.Attempts++
	info.StartedAt = getFormattedNow()
	info.CompletedAt = nil
}

func markCancelled(info *tasks.ChunkTaskInfo, errorMessages ...string) {
	info.Status = tasks.TaskStatusCanceled
	info.StartedAt = getFormattedNow()
	info.CompletedAt = getFormattedNow()
	info.Attempts++
	info.ErrorMessages = append(info.ErrorMessages, errorMessages...)
}

func markFailedPermanently(info *tasks.ChunkTaskInfo, errorMessage string) {
	now := getFormattedNow()
	info.Status = tasks.TaskStatusCompletedFailure
	info.StartedAt = now
	info.CompletedAt = now
	info.Attempts++
	info.ErrorMessages = append(info.ErrorMessages, errorMessage)
}

func markFailed(info *tasks.ChunkTaskInfo, err error) {
	info.Status = tasks.TaskStatusFailed
	info.CompletedAt = getFormattedNow()
	info.ErrorMessages = append(info.ErrorMessages, err.Error())
}

func markComplete(info *tasks.ChunkTaskInfo, resultsFileKey, fingerprint string) {
	if !info.Status.Complete() {
		info.Status = tasks.TaskStatusCompletedSuccess
	}
	info.CompletedAt = getFormattedNow()
	info.ResultsFileKey = resultsFileKey
	info.ModelFingerprint = fingerprint
}
