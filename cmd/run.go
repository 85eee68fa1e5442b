package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cosmossdk.io/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/super-flat/pipeline/actors"
	"github.com/super-flat/pipeline/config"
	"github.com/super-flat/pipeline/database"
	"github.com/super-flat/pipeline/message"
	"github.com/super-flat/pipeline/transport"
	"google.golang.org/protobuf/types/known/structpb"
)

// actor names of the pipeline
const (
	pusherName     = "pusher"
	dispatcherName = "dispatcher"
	pullerName     = "puller"
)

func init() {
	flags := runCMD.Flags()
	flags.String("source", config.SourceMemory, "data source: memory, postgres or socket")
	flags.String("sink", config.SinkStdout, "sink: stdout or postgres")
	flags.String("dsn", "", "postgres connection string")
	flags.String("table", "records", "postgres table")
	flags.String("address", "127.0.0.1:9999", "address of the JSON socket source")
	flags.String("key", "pipeline", "key tagging every pulled record")
	flags.Duration("timeout", time.Second, "bound of each read from the source")
	flags.Bool("stream", true, "keep polling an exhausted source")
	flags.Int("count", 10, "number of sample records of the memory source")
	flags.String("log-level", "info", "log level")
	flags.Bool("log-json", false, "log as JSON")
	rootCmd.AddCommand(runCMD)
}

var runCMD = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline until interrupted or until a non-stream source is exhausted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := applyFlags(cfg, cmd.Flags()); err != nil {
			return err
		}
		logger, err := cfg.Logger(os.Stderr)
		if err != nil {
			return err
		}
		count, _ := cmd.Flags().GetInt("count")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return Run(ctx, cfg, sampleRecords(count), cmd.OutOrStdout(), logger)
	},
}

// applyFlags overrides cfg with the flags set on the command line
func applyFlags(cfg *config.Config, flags *pflag.FlagSet) error {
	var err error
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "source":
			cfg.Source = f.Value.String()
		case "sink":
			cfg.Sink = f.Value.String()
		case "dsn":
			cfg.DSN = f.Value.String()
		case "table":
			cfg.Table = f.Value.String()
		case "address":
			cfg.Address = f.Value.String()
		case "key":
			cfg.Key = f.Value.String()
		case "timeout":
			cfg.Timeout, err = flags.GetDuration(f.Name)
		case "stream":
			cfg.Stream, err = flags.GetBool(f.Name)
		case "log-level":
			cfg.LogLevel = f.Value.String()
		case "log-json":
			cfg.LogJSON, err = flags.GetBool(f.Name)
		}
	})
	if err != nil {
		return err
	}
	return cfg.Validate()
}

// Run wires puller -> dispatcher -> pusher and runs them until ctx is done
// or the puller stops. records seed the memory source.
func Run(ctx context.Context, cfg *config.Config, records []*message.RecordMessage, out io.Writer, logger log.Logger) error {
	net := transport.NewContext()
	opts := []actors.ActorOpt{
		actors.WithLogger(logger),
		actors.WithMailboxSize(cfg.MailboxSize),
		actors.WithStreamMode(cfg.Stream),
		actors.WithTerminateTimeout(cfg.StopTimeout),
	}

	sink, err := newSink(cfg, out)
	if err != nil {
		return err
	}
	pusher := actors.NewPusher(pusherName, sink, net, opts...)
	dispatcher := actors.NewDispatcher(dispatcherName, actors.NewFilter().Filter(actors.AcceptAll, pusher), net, opts...)

	// downstream actors first, so the upstream ones can connect to them
	var running []*actors.ActorRef
	defer func() {
		// upstream first; each actor handles what it was sent, then stops
		for i := len(running) - 1; i >= 0; i-- {
			ref := running[i]
			if !ref.WaitIdle(cfg.StopTimeout) {
				logger.Warn("actor not drained before stop", "actor", ref.Name())
			}
			actors.Stop(context.Background(), ref, cfg.StopTimeout)
		}
	}()
	for _, ref := range []*actors.ActorRef{pusher, dispatcher} {
		if err := actors.Spawn(context.Background(), ref, cfg.StartTimeout); err != nil {
			return errors.Wrap(err, "start pipeline")
		}
		running = append(running, ref)
	}

	factory := func(attempt int) *actors.ActorRef {
		source := newSource(cfg, records)
		return actors.NewPuller(pullerName, source, actors.NewFilter().Filter(actors.AcceptAll, dispatcher), cfg.Key, cfg.Timeout, net, opts...)
	}
	puller, err := actors.Supervise(ctx, factory, actors.DefaultRestartPolicy(cfg.MaxRetries), cfg.StartTimeout, logger)
	if err != nil {
		return errors.Wrap(err, "start puller")
	}
	running = append(running, puller)
	logger.Info("pipeline started", "source", cfg.Source, "sink", cfg.Sink)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-puller.Done():
		if err := puller.Err(); err != nil {
			logger.Error("puller failed, shutting down", "err", err)
			return errors.Wrap(err, "puller stopped")
		}
		logger.Info("puller stopped, shutting down")
	}
	return nil
}

func newSource(cfg *config.Config, records []*message.RecordMessage) database.Source {
	switch cfg.Source {
	case config.SourcePostgres:
		return database.NewPostgres(cfg.DSN, database.WithTable(cfg.Table))
	case config.SourceSocket:
		return database.NewJSONSocket(cfg.Address, cfg.StartTimeout, cfg.BufferSize)
	default:
		return database.NewMemory(records...)
	}
}

func newSink(cfg *config.Config, out io.Writer) (database.Sink, error) {
	switch cfg.Sink {
	case config.SinkPostgres:
		return database.NewPostgresSink(cfg.DSN, database.WithTable(cfg.Table)), nil
	case config.SinkStdout:
		return database.NewWriter(keepOpen{out}), nil
	default:
		return nil, errors.Errorf("unknown sink %q", cfg.Sink)
	}
}

// sampleRecords builds count power readings for the memory source
func sampleRecords(count int) []*message.RecordMessage {
	records := make([]*message.RecordMessage, 0, count)
	now := time.Now().UTC()
	for i := 0; i < count; i++ {
		payload, _ := structpb.NewStruct(map[string]interface{}{
			"socket": strconv.Itoa(i % 2),
			"rapl":   float64(10 + i),
		})
		records = append(records, &message.RecordMessage{
			ID:        fmt.Sprintf("sample-%d", i),
			Timestamp: now.Add(time.Duration(i) * time.Millisecond),
			Payload:   payload,
		})
	}
	return records
}

// keepOpen hides the Close method of stdout from the Writer sink
type keepOpen struct {
	io.Writer
}
