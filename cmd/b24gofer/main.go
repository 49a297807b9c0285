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
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"b24gofer/internal/api"
	"b24gofer/internal/batcher"
	"b24gofer/internal/cache"
	"b24gofer/internal/config"
	"b24gofer/internal/rest"
	"b24gofer/internal/transport"
)

type flags struct {
	configPath  string
	envFile     string
	method      string
	params      string
	batchPath   string
	halt        bool
	all         bool
	concurrency int
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "path to config file (JSON or YAML); optional when "+config.EnvWebhookURL+" is set")
	flag.StringVar(&f.envFile, "env", ".env", "path to .env file")
	flag.StringVar(&f.method, "method", "", "method to call, e.g. crm.deal.list")
	flag.StringVar(&f.params, "params", "", "method parameters as a JSON object")
	flag.StringVar(&f.batchPath, "batch", "", "path to a YAML or JSON batch file")
	flag.BoolVar(&f.halt, "halt", false, "stop a batch at the first failing command")
	flag.BoolVar(&f.all, "all", false, "fetch every page of a list method")
	flag.IntVar(&f.concurrency, "concurrency", 0, "batch calls run at once when -halt is off (0 uses the config value)")
	flag.Parse()

	os.Exit(run(f, os.Stdout))
}

func run(f flags, out io.Writer) int {
	cfg, err := config.LoadWithEnv(f.configPath, f.envFile)
	if err != nil {
		log := zerolog.New(os.Stderr).With().Timestamp().Logger()
		log.Error().Err(err).Msg("failed to load config")
		return 1
	}

	logger := setupLogger(cfg.LogLevel).With().Str("run", uuid.NewString()).Logger()

	if f.method == "" && f.batchPath == "" {
		logger.Error().Msg("one of -method or -batch is required")
		flag.Usage()
		return 2
	}

	exec := transport.New(cfg, logger)
	exec.Start()
	defer exec.Close()

	coalesced, closeBatcher := batcher.Wrap(exec, cfg, logger)
	defer closeBatcher()

	t, closeCache, err := cache.Wrap(coalesced, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create cache")
		return 1
	}
	defer closeCache()

	concurrency := cfg.BatchConcurrency
	if f.concurrency > 0 {
		concurrency = f.concurrency
	}

	client := api.NewClient(t,
		rest.WithTimeout(cfg.GetRequestTimeoutDuration()),
		rest.WithMaxSize(cfg.MaxBatchSize),
		rest.WithConcurrency(concurrency),
		rest.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("config", f.configPath).
		Int("endpoints", len(cfg.Endpoints)).
		Str("method", f.method).
		Str("batch", f.batchPath).
		Msg("starting b24gofer")

	var result interface{}
	if f.batchPath != "" {
		result, err = runBatch(ctx, client, f)
	} else {
		result, err = runCall(ctx, client, f)
	}
	if err != nil {
		logger.Error().Err(err).Msg("request failed")
		return 1
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Error().Err(err).Msg("failed to write output")
		return 1
	}
	return 0
}

type callOutput struct {
	Result json.RawMessage `json:"result"`
	Total  *int            `json:"total,omitempty"`
	Next   *int            `json:"next,omitempty"`
	Time   rest.TimeRecord `json:"time"`
}

type itemsOutput struct {
	Items []json.RawMessage `json:"items"`
	Count int               `json:"count"`
}

func runCall(ctx context.Context, client *api.Client, f flags) (interface{}, error) {
	params, err := parseParams(f.params)
	if err != nil {
		return nil, err
	}

	if f.all {
		items, err := client.ListAllParams(ctx, f.method, params)
		if err != nil {
			return nil, err
		}
		return itemsOutput{Items: items, Count: len(items)}, nil
	}

	resp, err := client.Call(f.method, params).Response(ctx)
	if err != nil {
		return nil, err
	}
	return callOutput{Result: resp.Result, Total: resp.Total, Next: resp.Next, Time: resp.Time}, nil
}

type batchEntryOutput struct {
	Key      string          `json:"key"`
	Executed bool            `json:"executed"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Total    *int            `json:"total,omitempty"`
	Next     *int            `json:"next,omitempty"`
}

type batchOutput struct {
	Calls   int                `json:"calls"`
	Time    rest.TimeRecord    `json:"time"`
	Results []batchEntryOutput `json:"results"`
}

func runBatch(ctx context.Context, client *api.Client, f flags) (interface{}, error) {
	bf, err := loadBatchFile(f.batchPath)
	if err != nil {
		return nil, err
	}
	set, err := bf.buildSet(client)
	if err != nil {
		return nil, err
	}

	batches := client.Batches(set, rest.WithHalt(bf.Halt || f.halt))
	res, err := batches.Result(ctx)
	if err != nil {
		return nil, err
	}
	t, err := batches.Time(ctx)
	if err != nil {
		return nil, err
	}

	output := batchOutput{Calls: batches.Calls(), Time: t}
	for _, v := range res.Values() {
		entry := batchEntryOutput{
			Key:      v.Key,
			Executed: res.Executed(v.Key),
			Result:   v.Result,
			Total:    res.ResultTotal[v.Key],
			Next:     res.ResultNext[v.Key],
		}
		if v.Err != nil {
			entry.Error = v.Err.Error()
		}
		output.Results = append(output.Results, entry)
	}
	return output, nil
}

// setupLogger configures the zerolog logger.
// Logs go to stderr; stdout carries the JSON result.
func setupLogger(level string) zerolog.Logger {
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: b24gofer [-config file] (-method name [-params json] [-all] | -batch file [-halt])\n")
		flag.PrintDefaults()
	}
}
