package jobtrigger

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/glue"
	"github.com/aws/aws-sdk-go/service/glue/glueiface"

	"github.com/rudderlabs/rudder-go-kit/config"
)

// Trigger starts a named batch job with key-value arguments through the surrounding
// orchestration layer.
type Trigger interface {
	StartJob(ctx context.Context, jobName string, args map[string]string) (runID string, err error)
}

// GlueTrigger implements Trigger on AWS Glue job runs.
type GlueTrigger struct {
	svc glueiface.GlueAPI
}

func NewGlueTrigger(conf *config.Config) (*GlueTrigger, error) {
	region := conf.GetString("AWS_REGION", "us-east-1")
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("creating aws session: %w", err)
	}
	return &GlueTrigger{svc: glue.New(sess)}, nil
}

func NewGlueTriggerWithClient(svc glueiface.GlueAPI) *GlueTrigger {
	return &GlueTrigger{svc: svc}
}

func (g *GlueTrigger) StartJob(ctx context.Context, jobName string, args map[string]string) (string, error) {
	// Glue job arguments are conventionally prefixed with "--".
	arguments := make(map[string]*string, len(args))
	for name, value := range args {
		arguments["--"+name] = aws.String(value)
	}
	out, err := g.svc.StartJobRunWithContext(ctx, &glue.StartJobRunInput{
		JobName:   aws.String(jobName),
		Arguments: arguments,
	})
	if err != nil {
		return "", fmt.Errorf("starting job %s: %w", jobName, err)
	}
	return aws.StringValue(out.JobRunId), nil
}
