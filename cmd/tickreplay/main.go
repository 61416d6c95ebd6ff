// tickreplay feeds a recorded tick stream through a fresh tracker and prints
// the resulting events, inventory projection, checkouts and overview as JSON.
//
// Input is newline-delimited JSON ticks (or one JSON array) read from --input
// or stdin. Every tick must carry a timestamp so the replay is reproducible.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"toolwatch/internal/catalog"
	"toolwatch/internal/ingest"
	"toolwatch/internal/model"
	"toolwatch/internal/sensor"
	"toolwatch/internal/tracker"
	"toolwatch/pkg/uid"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Report is the replay output document.
type Report struct {
	Ticks      int                       `json:"ticks"`
	Events     []model.Event             `json:"events"`
	Inventory  map[string]map[string]int `json:"inventory"`
	Checkouts  []model.Checkout          `json:"checkouts"`
	Overview   model.Overview            `json:"overview"`
	FinalState tracker.StateView         `json:"final_state"`
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var (
		input       string
		catalogPath string
		logLevel    string
		pretty      bool
	)
	cfg := tracker.DefaultConfig()

	flagSet := pflag.NewFlagSet("tickreplay", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&input, "input", "i", "-", "tick file (JSONL or JSON array), - for stdin")
	flagSet.StringVar(&catalogPath, "catalog", "", "catalog YAML (default: built-in workbench catalog)")
	flagSet.DurationVar(&cfg.SettleWindow, "settle", cfg.SettleWindow, "settle window after a drawer opens")
	flagSet.DurationVar(&cfg.RetentionWindow, "retention", cfg.RetentionWindow, "snapshot buffer retention")
	flagSet.DurationVar(&cfg.LookbackDelay, "lookback", cfg.LookbackDelay, "lookback delay applied at close")
	flagSet.IntVar(&cfg.MaxItemsPerBin, "max-items", cfg.MaxItemsPerBin, "maximum events per closed episode")
	flagSet.DurationVar(&cfg.UnseenWindow, "unseen", cfg.UnseenWindow, "window for the unseen-tools overview count")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level written to stderr")
	flagSet.BoolVar(&pretty, "pretty", true, "indent the JSON report")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	logger := buildLogger(logLevel, stderr)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	cat, err := catalog.Load(catalogPath)
	if err != nil {
		return err
	}

	ticks, err := readTicks(input, stdin)
	if err != nil {
		return err
	}

	report, err := replay(cat, cfg, ticks, logger)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(report)
}

func readTicks(path string, stdin io.Reader) ([]model.Tick, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read ticks: %w", err)
	}

	ticks, err := ingest.DecodeTicks(data)
	if err != nil {
		return nil, err
	}
	for i, t := range ticks {
		if t.At.IsZero() {
			return nil, fmt.Errorf("tick %d has no timestamp", i+1)
		}
	}
	return ticks, nil
}

// replay runs ticks through a pump sized to hold the whole stream, so the
// order and depth resolution match the live service.
func replay(cat *catalog.Catalog, cfg tracker.Config, ticks []model.Tick, logger *zap.Logger) (*Report, error) {
	var end time.Time
	for _, t := range ticks {
		if t.At.After(end) {
			end = t.At
		}
	}

	manager := tracker.NewManager(cat, cfg, logger,
		tracker.WithClock(func() time.Time { return end }),
		tracker.WithIDGenerator(uid.Sequential("evt")),
	)
	pump := ingest.NewPump(manager, sensor.NewClassifier(cat.Depth), len(ticks), logger)

	if n, err := pump.EnqueueBatch(ticks, ingest.SourceReplay); err != nil {
		return nil, fmt.Errorf("enqueue tick %d: %w", n+1, err)
	}
	pump.Close()
	pump.Run(context.Background())

	return &Report{
		Ticks:      len(ticks),
		Events:     manager.Events(0),
		Inventory:  manager.Projection(),
		Checkouts:  manager.Checkouts(),
		Overview:   manager.Overview(),
		FinalState: manager.State(),
	}, nil
}

func buildLogger(level string, w io.Writer) *zap.Logger {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.WarnLevel
	}
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(w), zapLevel)
	return zap.New(core)
}
