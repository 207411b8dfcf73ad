package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/nvrnode/internal/config"
	"github.com/smazurov/nvrnode/internal/events"
	"github.com/smazurov/nvrnode/internal/logging"
	"github.com/smazurov/nvrnode/internal/manager"
	"github.com/smazurov/nvrnode/internal/record"
	"github.com/smazurov/nvrnode/internal/shutdown"
	"github.com/smazurov/nvrnode/internal/source"
	"github.com/smazurov/nvrnode/internal/streams"
	"github.com/smazurov/nvrnode/internal/streams/store"
)

// stopTimeout bounds how long the command waits for the worker to exit after
// a stop request.
const stopTimeout = 15 * time.Second

// CreateIngestCmd creates the single-stream ingest command.
func CreateIngestCmd() *cobra.Command {
	var configFile string
	var segmentDir string
	var recordingDir string
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "ingest [stream-name]",
		Short: "Run a single stream ingest worker",
		Long: `Runs the ingest loop for one stream in the foreground: connects to the ` +
			`source, writes segments, and feeds any attached recorder. Loads configuration ` +
			`from streams.toml and follows config changes, shutting down when the stream ` +
			`is removed or disabled.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			streamName := args[0]

			loggingConfig := logging.Config{
				Level:  "info",
				Format: "text",
			}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("ingest").With("stream", streamName)

			logger.Info("Starting ingest command", "config", configFile)

			streamStore := store.NewTOML(configFile)
			if err := streamStore.Load(); err != nil {
				logger.Error("Failed to load streams configuration", "error", err, "config", configFile)
				os.Exit(1)
			}
			if _, exists := streamStore.GetStream(streamName); !exists {
				logger.Error("Stream not found")
				os.Exit(1)
			}

			coord := shutdown.NewCoordinator(logger)
			bus := events.New()
			states := streams.NewRegistry(streamStore)
			recorders := record.NewRegistry(record.NewPreBuffer(0), logger)

			mgr := manager.New(
				manager.Config{
					SegmentDir:   segmentDir,
					RecordingDir: recordingDir,
					StreamsPath:  configFile,
				},
				manager.Deps{
					Store:     streamStore,
					States:    states,
					Recorders: recorders,
					Coord:     coord,
					Bus:       bus,
					Opener:    &source.RTSPOpener{Logger: logging.GetLogger("rtsp")},
					Logger:    logger,
				},
			)

			if err := mgr.StartStream(streamName); err != nil {
				logger.Error("Failed to start stream", "error", err)
				os.Exit(1)
			}

			// Follow config changes; a reload without this stream shuts the
			// command down.
			streamsLoader := func(path string) (map[string]streams.StreamSpec, error) {
				s := store.NewTOML(path)
				if err := s.Load(); err != nil {
					return nil, err
				}
				return s.GetAllStreams(), nil
			}

			watcher := config.NewConfigWatcher(configFile, streamsLoader, logger)
			watcher.OnReload(func(allStreams map[string]streams.StreamSpec) {
				spec, exists := allStreams[streamName]
				if !exists || !spec.Enabled {
					logger.Warn("Stream removed from config, shutting down")
					coord.Initiate()
					return
				}
				mgr.Reconcile(map[string]streams.StreamSpec{streamName: spec})
			})
			if err := watcher.Start(); err != nil {
				logger.Warn("Failed to start config watcher, hot-reload disabled", "error", err)
			} else {
				defer func() { _ = watcher.Stop() }()
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				logger.Info("Signal received, stopping", "signal", sig.String())
				coord.Initiate()
			case <-mgr.Done(streamName):
			}

			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			mgr.StopAll(ctx)

			logger.Info("Ingest command exiting")
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "streams.toml", "Path to streams configuration file")
	cmd.Flags().StringVar(&segmentDir, "segment-dir", "segments", "Directory for live segments")
	cmd.Flags().StringVar(&recordingDir, "recording-dir", "recordings", "Directory for recordings")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}
