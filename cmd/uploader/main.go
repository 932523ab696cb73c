package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/urfave/cli/v2"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/audience-uploader/services/objectstore"
	"github.com/rudderlabs/audience-uploader/services/secretstore"
	"github.com/rudderlabs/audience-uploader/uploader/common"
	snapuploader "github.com/rudderlabs/audience-uploader/uploader/snap"
	tiktokuploader "github.com/rudderlabs/audience-uploader/uploader/tiktok"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := &cli.App{
		Name:  "uploader",
		Usage: "consume object-created notifications and upload hashed audiences to one ad platform",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "platform", Usage: "snap or tiktok", Required: true},
		},
		Action: run,
	}
	if err := app.RunContext(ctx, os.Args); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	conf := config.New()
	log := logger.NewLogger().Child("uploader")

	store, err := objectstore.NewS3Store(conf)
	if err != nil {
		return err
	}
	secrets, err := secretstore.NewSecretsManagerStore(conf)
	if err != nil {
		return err
	}
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(conf.GetString("AWS_REGION", "us-east-1")),
	})
	if err != nil {
		return fmt.Errorf("creating aws session: %w", err)
	}

	platform := c.String("platform")
	var handler common.Handler
	switch platform {
	case "snap":
		api := snapuploader.NewAPIClient(conf, log)
		credentials := snapuploader.NewCredentialManager(conf, log, secrets, api)
		handler = snapuploader.NewHandler(log, stats.Default, store, credentials, api)
	case "tiktok":
		api := tiktokuploader.NewAPIClient(conf, log)
		handler = tiktokuploader.NewHandler(conf, log, stats.Default, store, secrets, api)
	default:
		return fmt.Errorf("unsupported platform %q", platform)
	}

	consumer := common.NewConsumer(conf, log, stats.Default, sqs.New(sess), handler, platform)
	log.Infof("consuming %s notifications", platform)
	return consumer.Run(c.Context)
}
