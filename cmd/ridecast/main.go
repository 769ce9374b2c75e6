// Command ridecast trains the hourly ride-demand models and answers
// forecast queries from the published generation.
//
// Usage:
//
//	ridecast train   [-config ridecast.yaml]
//	ridecast predict [-config ridecast.yaml] -zone 1 -date 2014-04-07 -window "Evening (6-10 PM)"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/YuminosukeSato/ridecast/artifact"
	"github.com/YuminosukeSato/ridecast/config"
	"github.com/YuminosukeSato/ridecast/notify"
	"github.com/YuminosukeSato/ridecast/pipeline"
	"github.com/YuminosukeSato/ridecast/pkg/errors"
	"github.com/YuminosukeSato/ridecast/pkg/log"
	"github.com/YuminosukeSato/ridecast/runrecord"
	"github.com/YuminosukeSato/ridecast/serving"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.GetLogger().Error("ridecast failed", err)
		fmt.Fprintf(os.Stderr, "ridecast: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		usage(stdout)
		return errors.New("missing command")
	}
	switch args[0] {
	case "train":
		return runTrain(ctx, args[1:], stdout)
	case "predict":
		return runPredict(args[1:], stdout)
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	default:
		usage(stdout)
		return errors.Newf("unknown command %q", args[0])
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: ridecast <train|predict> [flags]")
}

func loadConfig(fs *flag.FlagSet, args []string) (config.Config, error) {
	path := fs.String("config", "ridecast.yaml", "path to the YAML configuration")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(*path)
	if err != nil {
		return config.Config{}, err
	}
	if err := log.SetupLogger(cfg.Log.Level, cfg.Log.Format); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runTrain(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	logger := log.GetLoggerWithName("cmd")

	opts := []pipeline.Option{}
	if cfg.Recorder.PostgresDSN != "" {
		rec, err := runrecord.OpenPostgres(ctx, cfg.Recorder.PostgresDSN)
		if err != nil {
			logger.Warn("Run ledger unavailable, continuing without it", err)
		} else {
			defer rec.Close()
			opts = append(opts, pipeline.WithRecorder(rec))
		}
	}
	if cfg.Notify.AMQPURL != "" {
		pub, err := notify.DialAMQP(cfg.Notify.AMQPURL, cfg.Notify.Exchange)
		if err != nil {
			logger.Warn("Broker unavailable, generations will not be announced", err)
		} else {
			defer pub.Close()
			opts = append(opts, pipeline.WithPublisher(pub))
		}
	}

	p, err := pipeline.New(cfg, opts...)
	if err != nil {
		return err
	}
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}

	out := struct {
		Generation string      `json:"generation"`
		Best       string      `json:"best"`
		Summary    interface{} `json:"metrics"`
		Failed     []string    `json:"failed,omitempty"`
	}{
		Generation: res.RunID,
		Best:       res.Best.Name,
		Summary:    res.Summary,
	}
	for _, r := range res.Variants {
		if !r.OK() {
			out.Failed = append(out.Failed, string(r.Name))
		}
	}
	return writeJSON(stdout, out)
}

func runPredict(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	zone := fs.Int("zone", 1, "zone id (1-10)")
	date := fs.String("date", "", "date as YYYY-MM-DD")
	window := fs.String("window", serving.WindowMidday, "time window")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}

	store := artifact.NewStore(cfg.Artifacts.ModelDir, artifact.WithKeepGenerations(cfg.Artifacts.KeepGenerations))
	fc, err := serving.NewForecaster(store).Predict(serving.PredictRequest{
		ZoneID:     *zone,
		Date:       *date,
		TimeWindow: *window,
	})
	if err != nil {
		return err
	}
	return writeJSON(stdout, fc)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
