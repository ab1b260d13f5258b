package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"linedex/internal"
	"linedex/internal/charset"
	"linedex/internal/common"
	"linedex/internal/fetch"
	"linedex/internal/index"
	"linedex/internal/worker"
)

func overrideConfig(cfg Config, ctx *cli.Context) Config {
	if ctx.Int("IndexBlockSizeBytes") != 0 {
		cfg.IndexBlockSizeBytes = ctx.Int("IndexBlockSizeBytes")
	}
	if ctx.Int("PrefetchBlockCount") != 0 {
		cfg.PrefetchBlockCount = ctx.Int("PrefetchBlockCount")
	}
	if ctx.Bool("FastModificationDetection") {
		cfg.FastModificationDetection = true
	}
	if ctx.String("ForcedEncoding") != "" {
		cfg.ForcedEncoding = ctx.String("ForcedEncoding")
	}
	if ctx.Int("PollIntervalSeconds") != 0 {
		cfg.PollIntervalSeconds = ctx.Int("PollIntervalSeconds")
	}
	if ctx.String("ListenAddr") != "" {
		cfg.ListenAddr = ctx.String("ListenAddr")
	}
	if ctx.String("Env") != "" {
		cfg.Env = ctx.String("Env")
	}

	return cfg
}

// forcedEncoding resolves the configured encoding name, empty means
// detect from the file.
func forcedEncoding(name string) (*charset.Encoding, error) {
	if name == "" {
		return nil, nil
	}
	return charset.Lookup(name)
}

func PrepareConsoleApp() (app *cli.App) {

	prepare := func(ctx *cli.Context) (Config, *zap.Logger, error) {
		cfg, err := LoadConfig()
		noConfigFile := errors.Is(err, errNoConfigFile)
		if err != nil && !noConfigFile {
			return cfg, nil, err
		}
		cfg = overrideConfig(cfg, ctx)
		if err := cfg.Validate(); err != nil {
			return cfg, nil, err
		}
		logger, err := internal.NewLogger(cfg.Env)
		if err != nil {
			return cfg, nil, err
		}
		if noConfigFile {
			logger.Info("no config file found, using default config")
		}
		logger.Debug("loaded config", zap.Any("config", cfg))
		return cfg, logger, nil
	}

	fileArg := func(ctx *cli.Context) (string, error) {
		file := ctx.Args().First()
		if file == "" {
			return "", fmt.Errorf("the path to a log file is required, see --help")
		}
		return file, nil
	}

	// indexOnce runs one full indexing pass and waits for it to finish.
	indexOnce := func(file string, cfg Config, logger *zap.Logger) (*index.Store, worker.Outcome, error) {
		forced, err := forcedEncoding(cfg.ForcedEncoding)
		if err != nil {
			return nil, worker.Interrupted, err
		}

		store := index.NewStore(func() bool { return cfg.FastModificationDetection })
		done := make(chan worker.Outcome, 1)
		w := worker.NewWorker(
			file,
			store,
			worker.Settings{BlockSize: cfg.IndexBlockSizeBytes, Prefetch: cfg.PrefetchBlockCount},
			worker.Events{
				IndexingFinished: func(o worker.Outcome) { done <- o },
				Issue:            func(msg string) { fmt.Fprintln(os.Stderr, msg) },
			},
			logger,
		)
		w.IndexAll(forced)
		outcome := <-done
		w.Close()

		return store, outcome, nil
	}

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "IndexBlockSizeBytes",
			Aliases: []string{"block"},
			Usage:   "how many bytes of the file are read at once while indexing",
		},
		&cli.IntFlag{
			Name:    "PrefetchBlockCount",
			Aliases: []string{"prefetch"},
			Usage:   "how many read blocks may queue up ahead of the parser",
		},
		&cli.BoolFlag{
			Name:    "FastModificationDetection",
			Aliases: []string{"fast"},
			Usage:   "compare only the head and the tail of the file when checking for changes",
		},
		&cli.StringFlag{
			Name:    "ForcedEncoding",
			Aliases: []string{"encoding"},
			Usage:   "decode the file with this encoding instead of detecting one, example: \"UTF-16LE\"",
		},
		&cli.IntFlag{
			Name:    "PollIntervalSeconds",
			Aliases: []string{"poll"},
			Usage:   "how often the file is re-checked when OS notifications are unavailable (seconds)",
		},
		&cli.StringFlag{
			Name:    "ListenAddr",
			Aliases: []string{"listen"},
			Usage:   "the address the HTTP status API binds to in watch mode, example: \"127.0.0.1:8399\"",
		},
		&cli.StringFlag{
			Name:    "Env",
			Aliases: []string{"env"},
			Usage:   "logging profile: \"prod\", \"dev\" or anything else for a quiet default",
		},
	}

	linesFlags := append(
		[]cli.Flag{
			&cli.IntFlag{
				Name:  "from",
				Usage: "the first line to print (zero-based)",
			},
			&cli.IntFlag{
				Name:  "to",
				Value: -1,
				Usage: "the last line to print (zero-based, default: the last indexed line)",
			},
			&cli.BoolFlag{
				Name:  "offsets",
				Usage: "print byte extents instead of line content",
			},
		},
		flags...,
	)

	app = &cli.App{
		Name:  "linedex",
		Usage: "index the lines of a log file and serve them by number",
		Commands: []*cli.Command{
			{
				Name:        "index",
				ArgsUsage:   "FILE",
				Flags:       flags,
				Description: "Indexes the file once and reports what the index holds.",
				Action: func(ctx *cli.Context) error {
					cfg, logger, err := prepare(ctx)
					if err != nil {
						return err
					}
					defer logger.Sync()

					file, err := fileArg(ctx)
					if err != nil {
						return err
					}

					store, outcome, err := indexOnce(file, cfg, logger)
					if err != nil {
						return err
					}
					if outcome != worker.Successful {
						return fmt.Errorf("indexing did not finish: %s", outcome)
					}

					sn := store.Snapshot()
					fmt.Printf("file:           %s\n", file)
					fmt.Printf("lines:          %d\n", sn.Lines)
					fmt.Printf("max line width: %d\n", sn.MaxLength)
					fmt.Printf("encoding:       %s\n", sn.Encoding().Name())
					fmt.Printf("indexed bytes:  %s\n", common.ReadableSize(sn.IndexedSize()))
					fmt.Printf("index memory:   %s\n", common.ReadableSize(sn.Allocated))
					return nil
				},
			},
			{
				Name:        "lines",
				ArgsUsage:   "FILE",
				Flags:       linesFlags,
				Description: "Indexes the file once and prints a range of its lines.",
				Action: func(ctx *cli.Context) error {
					cfg, logger, err := prepare(ctx)
					if err != nil {
						return err
					}
					defer logger.Sync()

					file, err := fileArg(ctx)
					if err != nil {
						return err
					}

					store, outcome, err := indexOnce(file, cfg, logger)
					if err != nil {
						return err
					}
					if outcome != worker.Successful {
						return fmt.Errorf("indexing did not finish: %s", outcome)
					}

					sn := store.Snapshot()
					first := ctx.Int("from")
					last := ctx.Int("to")
					if last < 0 || last >= sn.Lines {
						last = sn.Lines - 1
					}
					if first > last {
						return fmt.Errorf("nothing to print: lines %d..%d of %d", first, last, sn.Lines)
					}

					r, err := fetch.Open(file, store)
					if err != nil {
						return err
					}
					defer r.Close()

					if ctx.Bool("offsets") {
						for n := first; n <= last; n++ {
							from, to, err := r.Span(n)
							if err != nil {
								return err
							}
							fmt.Printf("%d\t%d..%d\n", n, from, to)
						}
						return nil
					}

					lines, err := r.Lines(first, last-first+1)
					if err != nil {
						return err
					}
					for _, line := range lines {
						fmt.Println(line)
					}
					return nil
				},
			},
			{
				Name:        "watch",
				ArgsUsage:   "FILE",
				Flags:       flags,
				Description: "Keeps the index in sync with the file and serves it over HTTP until interrupted.",
				Action: func(ctx *cli.Context) error {
					cfg, logger, err := prepare(ctx)
					if err != nil {
						return err
					}
					defer logger.Sync()

					file, err := fileArg(ctx)
					if err != nil {
						return err
					}

					m, err := NewMonitor(file, cfg, logger)
					if err != nil {
						return err
					}

					runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
					defer stop()
					return m.Run(runCtx)
				},
			},
			{
				Name:        "gen",
				Flags:       flags,
				Description: "Generates config to stdOut.",
				Action: func(ctx *cli.Context) error {
					cfg := overrideConfig(DefaultCfg, ctx)
					err := cfg.Validate()
					if err != nil {
						return err
					}
					yamlData, err := yaml.Marshal(&cfg)
					if err != nil {
						return err
					}
					fmt.Print(string(yamlData))
					return nil
				},
			},
		},
	}

	return
}
