package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"ngram-go/internal/config"
	"ngram-go/internal/controller"
	"ngram-go/internal/handler"
	"ngram-go/internal/service/corpus"
	"ngram-go/internal/service/ngram"
	"ngram-go/internal/service/tokenizer"
	"ngram-go/pkg/mcp"

	"go.uber.org/zap"
)

func main() {
	var appConfigPath = flag.String("app", "app.yaml", "Path to app configuration file")
	var mode = flag.String("mode", "serve", "Run mode: train or serve")
	var workDir = flag.String("workdir", "", "Working directory to store models and reports")
	var override = flag.Bool("override", false, "Retrain even when a saved model exists")
	flag.Parse()

	cfg, err := config.LoadConfig(*appConfigPath)
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	// Override workdir from command line if provided
	if *workDir != "" {
		cfg.App.WorkDir = *workDir
	}
	if !filepath.IsAbs(cfg.App.ModelDir) {
		cfg.App.ModelDir = filepath.Join(cfg.App.WorkDir, cfg.App.ModelDir)
	}

	logger, err := newLogger(cfg.App)
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded successfully", zap.Any("config", cfg))

	registry, err := tokenizer.NewDefaultRegistry()
	if err != nil {
		logger.Fatal("Failed to initialize tokenizers", zap.Error(err))
	}
	defer registry.Close()

	ngramService, err := ngram.NewNGramService(cfg, registry, logger)
	if err != nil {
		logger.Fatal("Failed to initialize N-gram service", zap.Error(err))
	}

	ctx := context.Background()
	switch *mode {
	case "train":
		if err := train(ctx, cfg, registry, ngramService, logger); err != nil {
			logger.Fatal("Training failed", zap.Error(err))
		}
	case "serve":
		if err := loadOrTrain(ctx, cfg, registry, ngramService, *override, logger); err != nil {
			logger.Fatal("Failed to prepare models", zap.Error(err))
		}
		serve(cfg, ngramService, logger)
	default:
		logger.Fatal("Unknown mode", zap.String("mode", *mode))
	}
}

func newLogger(app config.AppConfig) (*zap.Logger, error) {
	cfgZap := zap.NewProductionConfig()

	level, err := zap.ParseAtomicLevel(app.LogLevel)
	if err != nil {
		return nil, err
	}
	cfgZap.Level = level

	if len(app.LogOutputs) > 0 {
		outputs := make([]string, 0, len(app.LogOutputs))
		for _, out := range app.LogOutputs {
			if out != "stdout" && out != "stderr" && !filepath.IsAbs(out) {
				out = filepath.Join(app.WorkDir, out)
			}
			outputs = append(outputs, out)
		}
		cfgZap.OutputPaths = outputs
	}
	return cfgZap.Build()
}

func loadOrTrain(ctx context.Context, cfg *config.Config, registry *tokenizer.TokenizerRegistry, ngramService *ngram.NGramService, override bool, logger *zap.Logger) error {
	name := cfg.App.ModelName
	if override && ngramService.ModelExists(name) {
		// a failed retrain leaves no stale model behind
		if err := ngramService.DeleteModel(name); err != nil {
			return err
		}
		logger.Info("Deleted existing model before retraining", zap.String("name", name))
	}
	if !override && ngramService.ModelExists(name) {
		err := ngramService.Load(name)
		if err == nil {
			return nil
		}
		logger.Warn("Failed to load existing model, will retrain",
			zap.String("name", name),
			zap.Error(err))
	}
	return train(ctx, cfg, registry, ngramService, logger)
}

func train(ctx context.Context, cfg *config.Config, registry *tokenizer.TokenizerRegistry, ngramService *ngram.NGramService, logger *zap.Logger) error {
	loader, err := corpus.NewLoader(cfg.Dataset, cfg.Training.Language, registry, cfg.App.NumWorkers, logger)
	if err != nil {
		return err
	}

	splits, err := loader.LoadSplits(ctx)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	report, err := ngramService.Train(ctx, splits)
	if err != nil {
		return err
	}

	if err := ngramService.Save(cfg.App.ModelName); err != nil {
		return fmt.Errorf("failed to save models: %w", err)
	}

	reportPath, err := writeReport(cfg.App.WorkDir, report)
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	printReport(report)
	logger.Info("Training complete",
		zap.String("run_id", report.RunID),
		zap.String("report", reportPath))
	return nil
}

func writeReport(workDir string, report *ngram.Report) (string, error) {
	dir := filepath.Join(workDir, "reports")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, report.RunID+".json")
	return path, os.WriteFile(path, data, 0644)
}

func printReport(report *ngram.Report) {
	fmt.Printf("Run %s (%s), vocabulary %d tokens, min frequency %d\n",
		report.RunID, report.Language, report.VocabularySize, report.MinFrequency)
	fmt.Printf("Sequences: train=%d validation=%d test=%d\n",
		report.TrainSequences, report.ValidationSequences, report.TestSequences)
	if len(report.Seed) > 0 {
		fmt.Printf("Seed: %s\n", strings.Join(report.Seed, " "))
	}

	for _, order := range report.Orders {
		fmt.Printf("\nn=%d contexts=%d\n", order.N, order.Contexts)
		if order.Validation != nil {
			fmt.Printf("  validation perplexity: %.4f\n", order.Validation.Perplexity)
		}
		if order.Test != nil {
			fmt.Printf("  test perplexity:       %.4f\n", order.Test.Perplexity)
		}
		if len(order.Completion) > 0 {
			fmt.Printf("  completion: %s\n", strings.Join(order.Completion, " "))
		}
	}
}

func serve(cfg *config.Config, ngramService *ngram.NGramService, logger *zap.Logger) {
	modelController := controller.NewModelController(ngramService, logger)
	mcpServer := mcp.NewCompletionServer(ngramService, logger)

	router := handler.SetupRouter(modelController, mcpServer, logger)

	logger.Info("Starting server", zap.Int("port", cfg.App.Port))
	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.App.Port), router); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}
