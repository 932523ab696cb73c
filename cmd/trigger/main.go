package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/rudderlabs/rudder-go-kit/config"

	"github.com/rudderlabs/audience-uploader/services/jobtrigger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := &cli.App{
		Name:  "trigger",
		Usage: "start a named transform job with key-value arguments",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "job-name", Usage: "name of the batch job definition", Required: true},
			&cli.StringSliceFlag{Name: "arg", Usage: "job argument as key=value, repeatable"},
		},
		Action: run,
	}
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	trigger, err := jobtrigger.NewGlueTrigger(config.New())
	if err != nil {
		return err
	}

	args := map[string]string{}
	for _, raw := range c.StringSlice("arg") {
		key, value, found := strings.Cut(raw, "=")
		if !found {
			return fmt.Errorf("argument %q is not in key=value form", raw)
		}
		args[key] = value
	}

	runID, err := trigger.StartJob(c.Context, c.String("job-name"), args)
	if err != nil {
		return err
	}
	fmt.Printf("started job %s: run %s\n", c.String("job-name"), runID)
	return nil
}
