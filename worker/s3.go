package worker

import (
	"context"

	"hmmtagger.com/postag/s3client"
	"hmmtagger.com/postag/types"
)

type s3Transactions interface {
	getText(task *Task) (string, error)
	saveResults(task *Task, response types.TaggingResponse) error
}

type s3ClientWrapper struct {
	s3Client *s3client.Client
}

func (wrapper *s3ClientWrapper) getText(task *Task) (string, error) {
	return wrapper.s3Client.DownloadText(context.Background(), task.chunkTask.TextFileKey)
}

func (wrapper *s3ClientWrapper) saveResults(task *Task, response types.TaggingResponse) error {
	return wrapper.s3Client.UploadResults(context.Background(), task.resultsKey(), response)
}
