package worker

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
	"hmmtagger.com/postag/pipeline"
	"hmmtagger.com/postag/tasks"
	"hmmtagger.com/postag/types"
)

// fakeBackend stands in for redis, S3, RMQ and the tagging pipeline at once and records
// every call in order.
type fakeBackend struct {
	mu      sync.Mutex
	calls   []string
	failing map[string]bool

	chunk tasks.ChunkTask
	job   tasks.JobTask
	doc   *tasks.DocumentTaskCached
	text  string

	result        pipeline.Result
	closePipeline bool
	deliveries    chan amqp.Delivery

	requests             []pipeline.Request
	saved                *types.TaggingResponse
	failure              error
	failureMessages      []string
	cancelMessages       []string
	completedFingerprint string
	completedKey         string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		failing: map[string]bool{},
		chunk: tasks.ChunkTask{
			DocID:       "doc-1",
			JobID:       "job-1",
			TextFileKey: "texts/chunk-1.txt",
			Model:       "brown",
		},
		doc:  &tasks.DocumentTaskCached{},
		text: "The dog ran .",
		result: pipeline.Result{Data: `{"tid":"chunk-1","model":"brown","model_fingerprint":"9f2c",` +
			`"sentences":[{"line":1,"tokens":["The","dog","ran","."],"tags":["DET","N","V","."],"log_prob":-4.2}]}`},
		deliveries: make(chan amqp.Delivery, 4),
	}
}

// record logs the call and applies update under the lock unless the call is set to fail.
func (f *fakeBackend) record(name string, update func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if update != nil {
		update()
	}
	if f.failing[name] {
		return fmt.Errorf("mock: %s failed", name)
	}
	return nil
}

func (f *fakeBackend) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) pipeline(request pipeline.Request) <-chan pipeline.Result {
	_ = f.record("pipeline", func() { f.requests = append(f.requests, request) })
	ch := make(chan pipeline.Result, 1)
	if !f.closePipeline {
		ch <- f.result
	}
	close(ch)
	return ch
}

func (f *fakeBackend) getChunkTask(redisKey string) (*tasks.ChunkTask, error) {
	if err := f.record("getChunkTask", nil); err != nil {
		return nil, err
	}
	chunk := f.chunk
	return &chunk, nil
}

func (f *fakeBackend) getJobTask(task *Task) (*tasks.JobTask, error) {
	if err := f.record("getJobTask", nil); err != nil {
		return nil, err
	}
	job := f.job
	return &job, nil
}

func (f *fakeBackend) getDocTask(task *Task) (*tasks.DocumentTaskCached, error) {
	if err := f.record("getDocTask", nil); err != nil {
		return nil, err
	}
	return f.doc, nil
}

func (f *fakeBackend) onTaskStarted(task *Task) error {
	return f.record("onTaskStarted", nil)
}

func (f *fakeBackend) onTaskCancelled(task *Task, errorMessages ...string) error {
	return f.record("onTaskCancelled", func() { f.cancelMessages = append(f.cancelMessages, errorMessages...) })
}

func (f *fakeBackend) onTaskFailedPermanently(task *Task, errorMessage string) error {
	return f.record("onTaskFailedPermanently", func() { f.failureMessages = append(f.failureMessages, errorMessage) })
}

func (f *fakeBackend) onTaskFailedWithError(task *Task, err error) error {
	return f.record("onTaskFailedWithError", func() { f.failure = err })
}

func (f *fakeBackend) onTaskComplete(task *Task) error {
	return f.record("onTaskComplete", func() {
		f.completedFingerprint = task.modelFingerprint
		f.completedKey = task.resultsKey()
	})
}

func (f *fakeBackend) close() error {
	return nil
}

func (f *fakeBackend) getText(task *Task) (string, error) {
	if err := f.record("getText", nil); err != nil {
		return "", err
	}
	return f.text, nil
}

func (f *fakeBackend) saveResults(task *Task, response types.TaggingResponse) error {
	return f.record("saveResults", func() { f.saved = &response })
}

// fakeConn is the RMQ side of fakeBackend. It is a separate type because the redis and RMQ
// interfaces both declare close.
type fakeConn struct {
	*fakeBackend
}

func (c fakeConn) close() {
	_ = c.record("closeRMQ", nil)
}

func (c fakeConn) pingSequencer(task *Task, message Message) error {
	return c.record("pingSequencer", nil)
}

func (c fakeConn) acknowledgeDelivery(delivery *amqp.Delivery) error {
	return c.record("acknowledgeDelivery", nil)
}

func (c fakeConn) rejectDelivery(delivery *amqp.Delivery, rejectLogger *zerolog.Logger) {
	_ = c.record("rejectDelivery", nil)
}

func (c fakeConn) getDeliveriesCh() <-chan amqp.Delivery {
	return c.deliveries
}

func (c fakeConn) getReqChanErrorsCh() <-chan *amqp.Error {
	return nil
}

func (c fakeConn) getRespChanErrorsCh() <-chan *amqp.Error {
	return nil
}
