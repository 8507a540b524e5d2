package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guseggert/jsinject/inspector"
	"github.com/guseggert/jsinject/injector"
	"github.com/guseggert/jsinject/payload"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "jsinject",
		Usage:   "force any Node/Electron/V8 based process to execute arbitrary javascript code",
		Version: version,
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "pid",
				Usage: "Process id of the target.",
			},
			&cli.StringFlag{
				Name:  "search",
				Usage: "Search for the target by name, executable or command line instead of specifying its pid.",
			},
			&cli.StringFlag{
				Name:  "script",
				Usage: "Path of the script to inject.",
				Value: "example_script.js",
			},
			&cli.StringFlag{
				Name:  "code",
				Usage: "Code to execute, overrides --script.",
			},
			&cli.BoolFlag{
				Name:  "domains",
				Usage: "Print the available execution domains and exit.",
			},
			&cli.StringFlag{
				Name:  "custom-payload",
				Usage: "Raw protocol message to send instead of the evaluation request. Use - to read it from stdin.",
			},
			&cli.StringFlag{
				Name:  "poll-variable",
				Usage: "Variable to poll with JSON.stringify after the payload has been evaluated.",
			},
			&cli.Int64Flag{
				Name:  "poll-interval",
				Usage: "Polling interval in milliseconds.",
				Value: 1000,
			},
			&cli.StringFlag{
				Name:  "poll-command",
				Usage: "Command that receives each polled value as a line on its stdin, instead of stdout.",
			},
			&cli.DurationFlag{
				Name:  "activation-timeout",
				Usage: "Keep looking for the inspector port for this long after the grace period. Zero looks once.",
			},
			&cli.DurationFlag{
				Name:  "grace-period",
				Usage: "Time to wait for the debugger to start after signaling the target.",
				Value: 3 * time.Second,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging.",
			},
		},
		Action: func(cctx *cli.Context) error {
			fmt.Fprintf(os.Stderr, "%s v%s\n\n", cctx.App.Name, version)

			logConfig := zap.NewDevelopmentConfig()
			logConfig.DisableStacktrace = true
			if !cctx.Bool("verbose") {
				logConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
			}
			logger, err := logConfig.Build()
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}
			defer logger.Sync()
			sugar := logger.Sugar()

			pid := cctx.Int64("pid")
			if pid < 0 || pid > int64(^uint32(0)>>1) {
				return fmt.Errorf("invalid pid %d", pid)
			}
			search := cctx.String("search")
			if pid == 0 && search == "" {
				return errors.New("one of --pid or --search arguments must be specified")
			}
			if pid != 0 && search != "" {
				return errors.New("--pid and --search are mutually exclusive")
			}

			opts := []injector.Option{
				injector.WithActivatorOptions(
					inspector.WithGracePeriod(cctx.Duration("grace-period")),
					inspector.WithTimeout(cctx.Duration("activation-timeout")),
				),
			}
			if pid != 0 {
				opts = append(opts, injector.WithPID(int32(pid)))
			} else {
				opts = append(opts, injector.WithSearch(search))
			}

			switch {
			case cctx.Bool("domains"):
				opts = append(opts, injector.ListDomains())
			case cctx.String("custom-payload") != "":
				b, err := payload.Custom(cctx.String("custom-payload"), os.Stdin)
				if err != nil {
					return err
				}
				opts = append(opts, injector.WithCustomPayload(b))
			default:
				src, err := payload.Script(cctx.String("code"), cctx.String("script"))
				if err != nil {
					return err
				}
				opts = append(opts, injector.WithExpression(src))
			}

			if v := cctx.String("poll-variable"); v != "" {
				interval := time.Duration(cctx.Int64("poll-interval")) * time.Millisecond
				opts = append(opts, injector.WithPoll(v, interval))
				if c := cctx.String("poll-command"); c != "" {
					opts = append(opts, injector.WithPollCommand(c))
				}
			}

			inj, err := injector.New(sugar, opts...)
			if err != nil {
				return fmt.Errorf("building injector: %w", err)
			}

			ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return inj.Run(ctx)
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
