package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/nvrnode/cmd"
	"github.com/smazurov/nvrnode/internal/api"
	"github.com/smazurov/nvrnode/internal/config"
	"github.com/smazurov/nvrnode/internal/detect"
	"github.com/smazurov/nvrnode/internal/events"
	"github.com/smazurov/nvrnode/internal/logging"
	"github.com/smazurov/nvrnode/internal/manager"
	"github.com/smazurov/nvrnode/internal/record"
	"github.com/smazurov/nvrnode/internal/shutdown"
	"github.com/smazurov/nvrnode/internal/source"
	"github.com/smazurov/nvrnode/internal/streams"
	"github.com/smazurov/nvrnode/internal/streams/store"
	"github.com/smazurov/nvrnode/internal/systemd"
	"github.com/smazurov/nvrnode/internal/version"
)

// shutdownTimeout bounds how long OnStop waits for workers and recorders.
const shutdownTimeout = 20 * time.Second

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8080" toml:"server.port" env:"SERVER_PORT"`

	// Streams settings
	StreamsConfigFile string `help:"Stream definitions file" default:"streams.toml" toml:"streams.config_file" env:"STREAMS_CONFIG_FILE"`

	// Storage settings
	SegmentDir   string `help:"Directory for live segments" default:"segments" toml:"storage.segment_dir" env:"STORAGE_SEGMENT_DIR"`
	RecordingDir string `help:"Directory for recordings" default:"recordings" toml:"storage.recording_dir" env:"STORAGE_RECORDING_DIR"`

	// Recording settings
	PreBufferSize int `help:"Packets of pre-recording context kept per stream" default:"256" toml:"recording.prebuffer_size" env:"RECORDING_PREBUFFER_SIZE"`

	// Detection settings
	DetectionWorkers           int    `help:"Detection worker pool size" default:"2" toml:"detection.workers" env:"DETECTION_WORKERS"`
	DetectionQueueSize         int    `help:"Detection queue size" default:"8" toml:"detection.queue_size" env:"DETECTION_QUEUE_SIZE"`
	DetectionInterval          string `help:"Default spacing between detection submissions" default:"10s" toml:"detection.interval" env:"DETECTION_INTERVAL"`
	DetectionMemoryConstrained bool   `help:"Force constrained-host detection behavior" default:"false" toml:"detection.memory_constrained" env:"DETECTION_MEMORY_CONSTRAINED"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingIngest  string `help:"Ingest logging level" default:"info" toml:"logging.ingest" env:"LOGGING_INGEST"`
	LoggingManager string `help:"Manager logging level" default:"info" toml:"logging.manager" env:"LOGGING_MANAGER"`
	LoggingRecord  string `help:"Recording logging level" default:"info" toml:"logging.record" env:"LOGGING_RECORD"`
	LoggingDetect  string `help:"Detection logging level" default:"info" toml:"logging.detect" env:"LOGGING_DETECT"`
	LoggingRTSP    string `help:"RTSP source logging level" default:"info" toml:"logging.rtsp" env:"LOGGING_RTSP"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"ingest":  opts.LoggingIngest,
				"manager": opts.LoggingManager,
				"record":  opts.LoggingRecord,
				"detect":  opts.LoggingDetect,
				"rtsp":    opts.LoggingRTSP,
				"api":     opts.LoggingAPI,
			},
		})

		logger := logging.GetLogger("main")
		logger.Info("Starting nvrnode", "version", version.String())

		coord := shutdown.NewCoordinator(logger)
		eventBus := events.New()
		recentEvents := events.NewRecent(eventBus, 256)

		streamStore := store.NewTOML(opts.StreamsConfigFile)
		states := streams.NewRegistry(streamStore)

		prebuffer := record.NewPreBuffer(opts.PreBufferSize)
		recorders := record.NewRegistry(prebuffer, logging.GetLogger("record"))

		detectInterval, err := time.ParseDuration(opts.DetectionInterval)
		if err != nil {
			detectInterval = 10 * time.Second
		}
		detectLogger := logging.GetLogger("detect")
		detector := detect.NewService(detect.Config{
			Workers:           opts.DetectionWorkers,
			QueueSize:         opts.DetectionQueueSize,
			MemoryConstrained: opts.DetectionMemoryConstrained,
			DefaultInterval:   detectInterval,
		}, detect.ProcessorFunc(func(ctx context.Context, job detect.Job) error {
			// Inference runs out of process; jobs are surfaced on the bus for
			// an external consumer.
			eventBus.Publish(events.DetectionSampleEvent{
				Stream:    job.StreamName,
				Size:      len(job.Packet.Data),
				Timestamp: job.Submitted.UTC().Format(time.RFC3339),
			})
			detectLogger.Debug("Detection sample published",
				"stream", job.StreamName, "bytes", len(job.Packet.Data))
			return nil
		}), detectLogger)

		mgr := manager.New(
			manager.Config{
				SegmentDir:   opts.SegmentDir,
				RecordingDir: opts.RecordingDir,
				StreamsPath:  opts.StreamsConfigFile,
			},
			manager.Deps{
				Store:     streamStore,
				States:    states,
				Recorders: recorders,
				Detector:  detector,
				Coord:     coord,
				Bus:       eventBus,
				Opener:    &source.RTSPOpener{Logger: logging.GetLogger("rtsp")},
				Logger:    logging.GetLogger("manager"),
			},
		)

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Controller:        mgr,
			Store:             streamStore,
			States:            states,
			Recorders:         recorders,
			Events:            recentEvents,
			PrometheusHandler: promhttp.Handler(),
		})

		watchdogCtx, stopWatchdog := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			detector.Start()

			if startErr := mgr.Start(); startErr != nil {
				logger.Error("Failed to start stream manager", "error", startErr)
				os.Exit(1)
			}
			if watchErr := mgr.WatchConfig(); watchErr != nil {
				logger.Warn("Failed to watch stream config, hot-reload disabled", "error", watchErr)
			}

			systemd.NotifyReady(logger)
			go systemd.RunWatchdog(watchdogCtx, logger)

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			systemd.NotifyStopping(logger)
			stopWatchdog()
			coord.Initiate()

			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			mgr.StopAll(ctx)

			if pending := coord.WaitStopped(ctx, 0); len(pending) > 0 {
				logger.Warn("Components still pending at shutdown", "pending", pending)
			}

			detector.Stop()
			recentEvents.Close()
		})
	})

	cli.Root().AddCommand(cmd.CreateIngestCmd())

	cli.Run()
}
