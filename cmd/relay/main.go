// Command relay submits experiment trial records to a collection
// server, falling back to (or choosing) a local file when the server
// is unreachable or the session runs locally.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/studykit/relay/internal/config"
	"github.com/studykit/relay/internal/logging"
	"github.com/studykit/relay/internal/relay"
	"github.com/studykit/relay/internal/sink"
	"github.com/studykit/relay/internal/source"
	"github.com/studykit/relay/internal/stats"
	"github.com/studykit/relay/pkg/core"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "relay:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configDir   = flag.String("config", ".", "directory containing relay.cfg.json")
		recordsPath = flag.String("records", "", "JSON file holding the trial records to submit")
		experiment  = flag.String("experiment", "", "experiment name (overrides config)")
		participant = flag.String("participant", "", "participant id (default: generated)")
		server      = flag.String("server", "", "collection server URL (overrides config)")
		endpoint    = flag.String("endpoint", "", "server endpoint path (default /api/trial)")
		fileType    = flag.String("filetype", "json", "local output format: json or csv")
		filename    = flag.String("filename", "", "local output filename (default: generated)")
		outputDir   = flag.String("out", "", "local output directory (overrides config)")
		hostname    = flag.String("hostname", "", "location hostname used for environment detection")
		protocol    = flag.String("protocol", "", "location protocol used for environment detection")
		noFallback  = flag.Bool("no-fallback", false, "surface remote failures instead of saving locally")
		showInfo    = flag.Bool("info", false, "print the routing state and exit")
	)
	flag.Parse()

	if err := config.Load(*configDir); err != nil {
		return err
	}

	sessionStart := time.Now()
	logCfg := logging.Config{
		Level:    config.GetString("logLevel"),
		FilePath: logging.LogFilePath(config.GetString("logsDir"), "relay", sessionStart),
	}
	if config.GetBool("graylog.enabled") {
		logCfg.GraylogAddress = config.GetString("graylog.address")
	}
	if err := os.MkdirAll(config.GetString("logsDir"), 0755); err != nil {
		logCfg.FilePath = ""
	}
	logger := logging.Setup(logCfg)

	loc := core.Location{
		Protocol: config.GetString("location.protocol"),
		Hostname: config.GetString("location.hostname"),
	}
	if *protocol != "" {
		loc.Protocol = *protocol
	}
	if *hostname != "" {
		loc.Hostname = *hostname
	}

	serverURL := config.GetString("serverUrl")
	if *server != "" {
		serverURL = *server
	}
	experimentName := config.GetString("experimentName")
	if *experiment != "" {
		experimentName = *experiment
	}
	outDir := config.GetString("outputDir")
	if *outputDir != "" {
		outDir = *outputDir
	}

	var fileSink core.PersistenceSink
	archiveCfg := config.GetArchiveConfig()
	if archiveCfg.Enabled {
		archive, err := sink.NewSQLite(archiveCfg.Path, logger)
		if err != nil {
			return err
		}
		defer archive.Close()
		fileSink = archive
	} else {
		fileSink = sink.NewDirectory(outDir, logger)
	}

	if *recordsPath == "" && !*showInfo {
		return fmt.Errorf("no records file given (use -records)")
	}

	var src core.RecordSource
	if *recordsPath != "" {
		fileSrc, err := source.LoadFile(*recordsPath)
		if err != nil {
			return err
		}
		src = fileSrc
	} else {
		src = source.NewMemory()
	}

	opts := []relay.Option{
		relay.WithServerURL(serverURL),
		relay.WithExperimentName(experimentName),
		relay.WithLocation(loc),
		relay.WithLogger(logger),
	}
	if *participant != "" {
		opts = append(opts, relay.WithParticipantID(*participant))
	}
	if *noFallback || !config.GetBool("fallbackToLocal") {
		opts = append(opts, relay.WithoutFallback())
	}

	handler, err := relay.New(src, fileSink, opts...)
	if err != nil {
		return err
	}

	if *showInfo {
		return printJSON(handler.Describe())
	}

	statsCfg := config.GetStatsConfig()
	var reporter *stats.Manager
	if statsCfg.Enabled {
		reporter = stats.NewManager(logger, statsCfg)
		if err := reporter.Connect(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("Stats reporting unavailable")
			reporter = nil
		} else {
			defer reporter.Close()
		}
	}

	result, err := handler.SubmitAll(context.Background(), core.SubmitOptions{
		Endpoint: *endpoint,
		FileType: core.FileType(*fileType),
		Filename: *filename,
	})
	if reporter != nil {
		method := core.ModeServer
		success := err == nil
		if err == nil {
			method = result.Method
		}
		if statErr := reporter.RecordDelivery(experimentName, method, success, len(src.Records())); statErr != nil {
			logger.Warn().Err(statErr).Msg("Failed to record delivery stats")
		}
	}
	if err != nil {
		return err
	}

	logger.Info().
		Str("method", string(result.Method)).
		Str("filename", result.Filename).
		Int("trials", len(src.Records())).
		Msg("Submission delivered")

	return printJSON(result)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
