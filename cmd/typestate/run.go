package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/amp-labs/typestate/cli"
	"github.com/amp-labs/typestate/logger"
	"github.com/amp-labs/typestate/shutdown"
	"github.com/amp-labs/typestate/statemachine"
	"github.com/amp-labs/typestate/statemachine/actions"
	"github.com/amp-labs/typestate/statemachine/publish"
	"github.com/amp-labs/typestate/statemachine/validator"
	"github.com/amp-labs/typestate/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const readHeaderTimeout = 5 * time.Second

func newRunCmd() *cobra.Command {
	var (
		events  []string
		initial string
		cfg     runConfig
	)

	cmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Run a machine",
		Long: `Starts a machine from a configuration. Without --events it asks for
events interactively. Each entry of --events is an event name, optionally
followed by ':' and a YAML payload, for example coin:50.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadRunConfig()
			if err != nil {
				return err
			}

			// Explicit flags win over the environment.
			flags := cmd.Flags()
			if !flags.Changed("publish") {
				cfg.Publish = env.Publish
			}

			if !flags.Changed("metrics-addr") {
				cfg.MetricsAddr = env.MetricsAddr
			}

			if !flags.Changed("pool") {
				cfg.Pool = env.Pool
			}

			if !flags.Changed("settle") {
				cfg.Settle = env.Settle
			}

			cfg.CloseTimeout = env.CloseTimeout

			return cfg.check()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), args[0], initial, events, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVarP(&events, "events", "e", nil, "events to send instead of prompting")
	flags.StringVar(&initial, "initial", "", "initial state (defaults to the configured one)")
	flags.StringVar(&cfg.Publish, "publish", publishNone, "publish changes to: none or redis")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.BoolVar(&cfg.Pool, "pool", false, "run effects on a worker pool")
	flags.DurationVar(&cfg.Settle, "settle", 0, "time to let effects settle after scripted events")

	return cmd
}

//nolint:funlen,cyclop
func run(parent context.Context, out io.Writer, path, initial string, events []string, cfg runConfig) error {
	if parent == nil {
		parent = context.Background()
	}

	ctx := shutdown.SetupHandler(parent)
	defer func() {
		shutdown.Shutdown()
		<-ctx.Done()
	}()

	otelConfig, err := telemetry.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	if err := telemetry.Initialize(ctx, otelConfig); err != nil {
		return err
	}

	shutdown.BeforeShutdown("telemetry", telemetry.Shutdown)

	if _, err := logger.ConfigureLogging("typestate", logger.WithExtraHandler(telemetry.LogHandler("typestate"))); err != nil {
		return err
	}

	result, err := validator.ValidateFileWithOptions(path, false, validator.ActionsRegistered(registry()))
	if err != nil {
		return logger.AnnotateError(err, "file", path)
	}

	if result.HasErrors() {
		fmt.Fprint(out, result.String())

		return result.Err()
	}

	config, err := statemachine.LoadConfig(path)
	if err != nil {
		return logger.AnnotateError(err, "file", path)
	}

	ctx = logger.WithSubsystem(ctx, "typestate."+config.Name)
	log := logger.Get(ctx)

	opts := []statemachine.Option{statemachine.WithSlogLogger(log)}

	if cfg.Pool {
		opts = append(opts, statemachine.WithPoolScheduler())
	}

	publisher, err := openPublisher(ctx, cfg)
	if err != nil {
		return err
	}

	if publisher != nil {
		opts = append(opts, statemachine.WithPublisher(publisher))
	}

	changes := publish.NewChannel()
	shutdown.BeforeShutdown("changes", func(context.Context) error { return changes.Close() })

	opts = append(opts, statemachine.WithPublisher(changes))

	printed := make(chan struct{})

	go func() {
		defer close(printed)

		printChanges(out, changes)
	}()

	if cfg.MetricsAddr != "" {
		if err := serveMetrics(ctx, cfg.MetricsAddr); err != nil {
			return err
		}
	}

	def, err := config.Define(registry(), opts...)
	if err != nil {
		return err
	}

	start := any(config.InitialState())
	if initial != "" {
		start = initial
	}

	machine, err := def.New(ctx, start)
	if err != nil {
		return logger.AnnotateError(err, "file", path, "initial", start)
	}

	logger.Get(logger.WithMachine(ctx, config.Name, machine.ID().String())).Info("machine started",
		"state", machine.State())

	closeMachine := func(hookCtx context.Context) error {
		closeCtx, cancel := context.WithTimeout(hookCtx, cfg.CloseTimeout)
		defer cancel()

		return machine.Close(closeCtx)
	}

	shutdown.BeforeShutdown("machine", closeMachine)

	if len(events) > 0 {
		err = sendScripted(machine, events, cfg.Settle)
	} else {
		err = interact(ctx, machine)
	}

	if err != nil {
		return err
	}

	// Stop the machine so that every change is printed before the summary.
	if err := closeMachine(ctx); err != nil {
		return err
	}

	_ = changes.Close()
	<-printed

	fmt.Fprint(out, actions.DumpView(machine.View()))

	return nil
}

// openPublisher returns the configured external publisher, or nil.
func openPublisher(ctx context.Context, cfg runConfig) (statemachine.Publisher, error) {
	if strings.ToLower(cfg.Publish) != publishRedis {
		return nil, nil //nolint:nilnil
	}

	redisConfig, err := publish.LoadRedisConfig()
	if err != nil {
		return nil, err
	}

	client, err := publish.Connect(ctx, redisConfig)
	if err != nil {
		return nil, err
	}

	shutdown.BeforeShutdown("redis", func(context.Context) error { return client.Close() })

	return publish.NewStream(client, redisConfig.Options()...), nil
}

func serveMetrics(ctx context.Context, addr string) error {
	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	shutdown.BeforeShutdown("metrics", server.Shutdown)

	slog.Info("serving metrics", "addr", listener.Addr().String())

	return nil
}

func printChanges(out io.Writer, changes *publish.Channel) {
	for change := range changes.Changes() {
		if change.Transitioned() {
			fmt.Fprintf(out, "%s --%s--> %s\n", change.From, change.Event, change.To)
		} else {
			fmt.Fprintf(out, "%s: %s updated the context\n", change.From, change.Event)
		}
	}
}

// sendScripted sends each "event[:payload]" entry, then waits for settle so
// timers and other effects can run.
func sendScripted(machine *statemachine.Machine, events []string, settle time.Duration) error {
	for _, entry := range events {
		event, raw, _ := strings.Cut(entry, ":")

		payload, err := cli.ParsePayload(raw)
		if err != nil {
			return logger.AnnotateError(err, "event", event)
		}

		machine.Send(event, payload...)
	}

	if settle > 0 {
		time.Sleep(settle)
	}

	return nil
}

func interact(ctx context.Context, machine *statemachine.Machine) error {
	for ctx.Err() == nil && !machine.Closed() {
		view := machine.View()

		fmt.Print(actions.DumpView(view))

		event, err := cli.SelectEvent(view)
		if err != nil {
			return err
		}

		if event == cli.Quit {
			stop, err := cli.PromptConfirm("Stop the machine")
			if err != nil || stop {
				return err
			}

			continue
		}

		payload, err := cli.PromptPayload(event)
		if err != nil {
			return err
		}

		view.Send(event, payload...)
	}

	return nil
}
