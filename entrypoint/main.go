package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"hmmtagger.com/postag/api"
	"hmmtagger.com/postag/logger"
	"hmmtagger.com/postag/pipeline"
	"hmmtagger.com/postag/types"
	"hmmtagger.com/postag/worker"
)

type Config struct {
	ConfigPath    string `envconfig:"POSTAG_CONFIG_PATH" required:"true"`
	DirPath       string `envconfig:"POSTAG_DIR_PATH" required:"true"`
	RestAPIActive bool   `envconfig:"POSTAG_REST_API_ACTIVE" default:"false"`
	RestAPIPort   string `envconfig:"POSTAG_REST_API_PORT" default:"10000"`
	WorkerActive  bool   `envconfig:"POSTAG_WORKER_ACTIVE" default:"true"`
}

const modelsStartMaxRetries = 5

var mainLogger = logger.NewLogger("Main")

func main() {
	logger.SetupLogging()
	fatalErrLogger := mainLogger.Fatal().Caller()
	evaluate := flag.Bool("evaluate", false, "log accuracy of every model with an evaluation corpus and exit")
	interactive := flag.String("interactive", "", "tag sentences read from stdin with the named model")
	saveDir := flag.String("save-models", "", "write trained models to this directory and exit")
	flag.Parse()

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		fatalErrLogger.Err(err).Msg("Failed to read environment")
		os.Exit(1)
	}

	registry := loadModels(config)

	switch {
	case *evaluate:
		if err := evaluateModels(registry, os.Stdout); err != nil {
			mainLogger.Fatal().Err(err).Msg("Evaluation failed")
		}
		return
	case len(*saveDir) > 0:
		if err := saveModels(registry, *saveDir); err != nil {
			mainLogger.Fatal().Err(err).Msg("Failed to save models")
		}
		return
	case len(*interactive) > 0:
		if err := runInteractive(registry, *interactive, os.Stdin, os.Stdout); err != nil {
			mainLogger.Fatal().Err(err).Msg("Interactive session failed")
		}
		return
	}

	ppln := pipeline.New(registry)

	if config.RestAPIActive {
		go func() {
			mainLogger.Info().Msg("Starting API service")
			apiRequest := &api.Request{
				Pipeline: ppln,
				Registry: registry,
			}
			host := fmt.Sprintf(":%s", config.RestAPIPort)
			mainLogger.Info().Msgf("REST API on %s", host)
			err := http.ListenAndServe(host, apiRequest.Handler())
			mainLogger.Fatal().Err(err).Msg("REST API stopped with error")
		}()
	}

	if !config.WorkerActive {
		if !config.RestAPIActive {
			mainLogger.Warn().Msg("Neither REST API nor worker is active, exiting")
			return
		}
		select {}
	}

	mainLogger.Info().Msg("Start tagger worker")
	for {
		rmqWorker, err := worker.New(registry)
		if err != nil {
			mainLogger.Fatal().Err(err).Msg("Could not initialize RMQ worker")
		}
		if err = rmqWorker.Run(); err != nil {
			mainLogger.Err(err).Msg("Worker returned with error. Launching new in 5 seconds")
			time.Sleep(5 * time.Second)
		}
	}
}

// loadModels reads the model configurations and trains every model, retrying while the
// configuration or corpus files are not available yet.
func loadModels(config Config) *pipeline.Registry {
	for retry := 0; retry < modelsStartMaxRetries; retry++ {
		cfgs, err := types.LoadConfigurations(config.ConfigPath)
		if err != nil {
			mainLogger.Err(err).Msg("Failed to load configurations. Retrying in 5 sec")
			time.Sleep(5 * time.Second)
			continue
		}
		if len(cfgs) == 0 {
			mainLogger.Error().Str("path", config.ConfigPath).Msg("No model configurations found. Retrying in 5 sec")
			time.Sleep(5 * time.Second)
			continue
		}
		mainLogger.Info().Msgf("Loaded %d configurations", len(cfgs))

		registry, err := pipeline.TrainModels(pipeline.GetParams(config.DirPath, cfgs))
		if err != nil {
			mainLogger.Err(err).Msg("Failed to build models. Retrying in 5 sec")
			time.Sleep(5 * time.Second)
			continue
		}
		mainLogger.Info().Strs("models", registry.Names()).Msg("Models loaded")
		return registry
	}
	mainLogger.Fatal().Caller().Msgf("Could not load models after %d retries, exiting", modelsStartMaxRetries)
	return nil
}
