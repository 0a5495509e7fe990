// Command notifier-lambda runs the upload notifier as an AWS Lambda S3 trigger.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	commonlog "s4/server/common/log"
	notifierapp "s4/server/notifier/app"
	"s4/server/notifier/service"
)

func main() {
	cfg := notifierapp.LoadConfig()
	if cfg.Log.FilePath == "" {
		// only /tmp is writable and CloudWatch already collects stdout
		cfg.Log.FilePath = commonlog.FileSinkDisabled
	}
	commonlog.Init(cfg.Log)

	notifier, _, err := notifierapp.NewNotifier(cfg)
	if err != nil {
		log.Fatalf("initialize notifier: %v", err)
	}

	// A returned error makes Lambda retry the whole S3 batch.
	lambda.Start(func(ctx context.Context, event events.S3Event) error {
		defer commonlog.Sync()
		return notifier.Dispatch(ctx, service.SignalsFromS3Event(event))
	})
}
