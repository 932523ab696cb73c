package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/audience-uploader/pii"
	"github.com/rudderlabs/audience-uploader/services/objectstore"
	"github.com/rudderlabs/audience-uploader/transformer"
	snaptransformer "github.com/rudderlabs/audience-uploader/transformer/snap"
	tiktoktransformer "github.com/rudderlabs/audience-uploader/transformer/tiktok"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := &cli.App{
		Name:  "transformer",
		Usage: "normalize, hash and partition an audience export for one ad platform",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "platform", Usage: "snap or tiktok", Required: true},
			&cli.StringFlag{Name: "source-bucket", Usage: "bucket containing the input file", Required: true},
			&cli.StringFlag{Name: "source-key", Usage: "key of the input file, also seeds the output file names", Required: true},
			&cli.StringFlag{Name: "output-bucket", Usage: "bucket for the transformed output", Required: true},
			&cli.StringFlag{Name: "segment-name", Usage: "audience label embedded in the output paths", Required: true},
			&cli.StringFlag{Name: "pii-fields", Usage: "JSON array of {column_name, pii_type} to hash"},
		},
		Action: run,
	}
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	conf := config.New()
	log := logger.NewLogger().Child("transformer")

	specs, err := pii.ParseFieldSpecs(c.String("pii-fields"))
	if err != nil {
		return err
	}
	store, err := objectstore.NewS3Store(conf)
	if err != nil {
		return err
	}
	args := transformer.JobArgs{
		SourceBucket: c.String("source-bucket"),
		SourceKey:    c.String("source-key"),
		OutputBucket: c.String("output-bucket"),
		SegmentName:  c.String("segment-name"),
		PIIFields:    specs,
	}

	switch platform := c.String("platform"); platform {
	case "snap":
		return snaptransformer.New(conf, log, stats.Default, store).Run(c.Context, args)
	case "tiktok":
		return tiktoktransformer.New(conf, log, stats.Default, store).Run(c.Context, args)
	default:
		return fmt.Errorf("unsupported platform %q", platform)
	}
}
