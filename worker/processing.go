package worker

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
	"hmmtagger.com/postag/pipeline"
	"hmmtagger.com/postag/s3client"
	"hmmtagger.com/postag/tasks"
	"hmmtagger.com/postag/types"
	"hmmtagger.com/postag/utils"
)

// Message is the queue payload shared with the sequencer.
type Message struct {
	WorkType string `json:"work_type"`
	RedisKey string `json:"redis_key"`
	Sender   string `json:"sender"`
	Version  string `json:"version"`
}

type Task struct {
	delivery         *amqp.Delivery
	conn             rmqTransactions
	chunkTask        *tasks.ChunkTask
	message          *Message
	redisKey         string
	modelFingerprint string
	taskLogger       *zerolog.Logger
}

func (task *Task) resultsKey() string {
	return s3client.ResultsKey(task.chunkTask.DocID, task.redisKey)
}

// reject returns the delivery to its queue, once, through the connection it arrived on.
func (task *Task) reject() {
	rejectLogger := task.taskLogger.With().Str("message_id", task.delivery.MessageId).Logger()
	task.conn.rejectDelivery(task.delivery, &rejectLogger)
}

// finish hands the chunk back to the sequencer and acknowledges the delivery.
func (task *Task) finish() {
	if err := task.conn.pingSequencer(task, *task.message); err != nil {
		task.taskLogger.Err(err).Msg("Got error while sending message to sequencer queue")
		task.reject()
		return
	}
	if err := task.conn.acknowledgeDelivery(task.delivery); err != nil {
		task.taskLogger.Err(err).Msg("Failed to acknowledge delivery")
	}
	task.taskLogger.Info().Msg("Finished processing RMQ message")
}

func (worker *Worker) processMessage(task *Task) {
	if err := worker.processTask(task); err != nil {
		task.reject()
		return
	}
	task.finish()
}

func (worker *Worker) createTask(delivery *amqp.Delivery, conn rmqTransactions) (*Task, error) {
	var message Message
	if err := json.Unmarshal(delivery.Body, &message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	chunkTask, err := worker.redis.getChunkTask(message.RedisKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk task for message: %w", err)
	}
	taskLogger := worker.workerLogger.With().
		Str("tid", message.RedisKey).
		Str("model", chunkTask.Model).
		Logger()
	return &Task{
		delivery:   delivery,
		conn:       conn,
		chunkTask:  chunkTask,
		redisKey:   message.RedisKey,
		message:    &message,
		taskLogger: &taskLogger,
	}, nil
}

// processTask returns an error only when the delivery should be rejected. Tagging failures
// are recorded on the chunk task and the message goes back to the sequencer.
func (worker *Worker) processTask(task *Task) error {
	shouldPerform, err := worker.shouldPerformTask(task)
	if err != nil {
		task.taskLogger.Err(err).
			Msg("Got error while trying to decide whether to run task")
		return err
	}
	if !shouldPerform {
		return nil
	}
	if err = worker.redis.onTaskStarted(task); err != nil {
		task.taskLogger.Err(err).Msg("Failed to update task info")
		return fmt.Errorf("failed to update chunk task: %w", err)
	}
	if err = worker.runPipeline(task); err != nil {
		task.taskLogger.Err(err).Msg("Got error while running pipeline")
		return worker.redis.onTaskFailedWithError(task, err)
	}
	task.taskLogger.Info().Msg("Saved results, marking task as complete")
	if err = worker.redis.onTaskComplete(task); err != nil {
		task.taskLogger.Err(err).Msg("Got error while trying to mark task as complete")
		return err
	}
	return nil
}

func (worker *Worker) runPipeline(task *Task) (err error) {
	defer utils.RecoverWithError(&err)
	task.taskLogger.Info().Msgf("Processing message from RMQ, attempt # %d", task.chunkTask.TaskStatuses.Tagger.Attempts)
	text, err := worker.s3.getText(task)
	if err != nil {
		task.taskLogger.Err(err).Caller().Msg("Could not fetch text from s3")
		return fmt.Errorf("failed fetch text from s3: %w", err)
	}
	result, ok := <-worker.ppln(pipeline.Request{
		Tid:   task.redisKey,
		Model: task.chunkTask.Model,
		Text:  text,
	})
	if !ok {
		task.taskLogger.Error().Msg("Pipeline channel was closed before returning anything")
		return errors.New("pipeline channel was closed before returning anything")
	}
	if result.Err != nil {
		return fmt.Errorf("tagging failed: %w", result.Err)
	}
	var response types.TaggingResponse
	if err = json.Unmarshal([]byte(result.Data), &response); err != nil {
		return fmt.Errorf("unexpected pipeline output: %w", err)
	}
	task.modelFingerprint = response.ModelFingerprint

	unreachable := 0
	for _, sentence := range response.Sentences {
		if len(sentence.Error) > 0 {
			unreachable++
		}
	}
	task.taskLogger.Info().
		Str("fingerprint", task.modelFingerprint).
		Int("sentences", len(response.Sentences)).
		Int("untagged", unreachable).
		Msg("Finished pipeline, saving results to s3")
	if err = worker.s3.saveResults(task, response); err != nil {
		task.taskLogger.Err(err).Msg("Got error while trying to save results")
		return err
	}
	return nil
}

func (worker *Worker) shouldPerformTask(task *Task) (bool, error) {
	taskInfo := task.chunkTask.TaskStatuses.Tagger
	taskLogger := task.taskLogger

	if taskInfo.Status.Complete() {
		taskLogger.Info().Msg("Task is already done. (might indicate issue acking message with RMQ). Sending back to Sequencer.")
		return false, nil
	}
	taskJob, err := worker.redis.getJobTask(task)
	if err != nil {
		taskLogger.Err(err).Msg("Failed to query job task for chunk task")
		return false, err
	}
	if taskJob.UserCanceled {
		taskLogger.Info().Msg("Job was canceled, no need to perform this task. Sending back to Sequencer.")
		return false, worker.redis.onTaskCancelled(task)
	}
	if taskJob.StopDocumentsOnFailure {
		docTask, err := worker.redis.getDocTask(task)
		if err != nil {
			return false, err
		}
		if docTask == nil {
			return false, errors.New("document task not found")
		}
		if len(docTask.FailedTasks) > 0 {
			failedTask := docTask.FailedTasks[0]
			taskLogger.Info().Msgf("Task is not required because %q already completed with failure "+
				"and the document won't be processed successfully. Sending back to Sequencer.", failedTask)
			return false, worker.redis.onTaskCancelled(
				task,
				fmt.Sprintf(
					"Task was marked as %q because the document has failed "+
						"in the %q worker and won't be processed successfully.",
					tasks.TaskStatusCanceled,
					failedTask,
				),
			)
		}
	}
	if taskInfo.Attempts >= worker.config.TaskMaxRetries {
		taskLogger.Info().Msg("Tagging task has exceeded retries. Sending back to Sequencer.")
		return false, worker.redis.onTaskFailedPermanently(task, fmt.Sprintf(
			"Task has exceeded retries. (Attempts: %d, max retries: %d)",
			taskInfo.Attempts+1, worker.config.TaskMaxRetries,
		))
	}
	return true, nil
}
