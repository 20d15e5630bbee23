package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"jailbreak-eval/internal/config"
	"jailbreak-eval/internal/dataset"
	"jailbreak-eval/internal/domain"
	"jailbreak-eval/internal/integrations/openai"
	"jailbreak-eval/internal/integrations/paramstore"
	"jailbreak-eval/internal/repository"
	"jailbreak-eval/internal/usecase"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the run configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	aws := &awsClients{ctx: ctx}

	// ---- Endpoint clients ----
	primaryClient, err := newEndpointClient(cfg.Primary, cfg.RetryAttempts, aws)
	if err != nil {
		slog.Error("failed to create primary endpoint client", "err", err)
		os.Exit(1)
	}
	metaClient, err := newEndpointClient(cfg.Meta, cfg.RetryAttempts, aws)
	if err != nil {
		slog.Error("failed to create meta endpoint client", "err", err)
		os.Exit(1)
	}

	// ---- Inputs ----
	prompts, err := dataset.Load(ctx, cfg.Dataset.Source, nil)
	if err != nil {
		slog.Error("failed to load dataset", "err", err)
		os.Exit(1)
	}
	_, evalPrompts, err := dataset.Split(prompts, cfg.Dataset.TestFraction, cfg.Dataset.Seed)
	if err != nil {
		slog.Error("failed to split dataset", "err", err)
		os.Exit(1)
	}
	templateSet, err := dataset.LoadTemplateSet(cfg.Templates)
	if err != nil {
		slog.Error("failed to load jailbreak templates", "err", err)
		os.Exit(1)
	}
	templates := templateSet.Cycle(len(evalPrompts))

	// ---- Services ----
	instructions := instructionSet(cfg)
	primaryModel := domain.ModelConfig{
		BaseURL:     cfg.Primary.BaseURL,
		Model:       cfg.Primary.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	metaModel := domain.ModelConfig{
		BaseURL:     cfg.Meta.BaseURL,
		Model:       cfg.Meta.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}

	refiner, err := usecase.NewRefineService(primaryClient, primaryModel, instructions)
	if err != nil {
		slog.Error("failed to create refine service", "err", err)
		os.Exit(1)
	}
	evolver, err := usecase.NewEvolveService(metaClient, metaModel, instructions, cfg.EvolveLimit)
	if err != nil {
		slog.Error("failed to create evolve service", "err", err)
		os.Exit(1)
	}

	runOpts := []usecase.RunOption{}
	if cfg.Checkpoint.Table != "" {
		dynamoAPI, err := aws.dynamo()
		if err != nil {
			slog.Error("failed to create DynamoDB client", "err", err)
			os.Exit(1)
		}
		sink, err := repository.New(dynamoAPI, cfg.Checkpoint.Table)
		if err != nil {
			slog.Error("failed to create checkpoint store", "err", err)
			os.Exit(1)
		}
		runOpts = append(runOpts, usecase.WithRecordSink(sink))
	}

	runner, err := usecase.NewRunService(refiner, evolver, primaryModel, metaModel, instructions, cfg.Criterion, runOpts...)
	if err != nil {
		slog.Error("failed to create run service", "err", err)
		os.Exit(1)
	}

	// ---- Run ----
	slog.Info("starting evaluation run",
		"run_id", runner.RunID(),
		"prompts", len(evalPrompts),
		"model", cfg.Primary.Model,
		"meta_model", cfg.Meta.Model,
		"temperature", cfg.Temperature,
	)
	results, err := runner.Run(ctx, evalPrompts, templates)
	if err != nil {
		slog.Error("evaluation run failed", "err", err)
		os.Exit(1)
	}

	writer, err := repository.NewResultsWriter(cfg.OutputDir)
	if err != nil {
		slog.Error("failed to create results writer", "err", err)
		os.Exit(1)
	}
	path, err := writer.Write(results, cfg.Primary.Model, cfg.Temperature)
	if err != nil {
		slog.Error("failed to write results", "err", err)
		os.Exit(1)
	}
	slog.Info("results saved", "path", path, "records", len(results))
}

// instructionSet applies configured wording overrides onto the defaults.
func instructionSet(cfg *config.Config) usecase.InstructionSet {
	set := usecase.DefaultInstructions()
	if s := strings.TrimSpace(cfg.Instructions.System); s != "" {
		set.System = s
	}
	if s := strings.TrimSpace(cfg.Instructions.Critique); s != "" {
		set.CritiqueTemplate = s
	}
	if s := strings.TrimSpace(cfg.Instructions.Revision); s != "" {
		set.RevisionTemplate = s
	}
	if s := strings.TrimSpace(cfg.Instructions.MetaCritique); s != "" {
		set.MetaCritiqueTemplate = s
	}
	return set
}

// newEndpointClient wires the credential source and retry policy for one
// endpoint configuration.
func newEndpointClient(m config.Model, retryAttempts int, aws *awsClients) (*openai.Client, error) {
	keys, err := keySource(m, aws)
	if err != nil {
		return nil, err
	}
	var opts []openai.Option
	if retryAttempts > 1 {
		opts = append(opts, openai.WithRetry(retryAttempts))
	}
	return openai.NewClient(keys, m.BaseURL, opts...)
}

func keySource(m config.Model, aws *awsClients) (openai.KeySource, error) {
	if m.APIKeyEnv != "" {
		key := os.Getenv(m.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("environment variable %s is not set", m.APIKeyEnv)
		}
		return openai.StaticKey(key), nil
	}
	if m.APIKeyParam != "" {
		getter, err := aws.params()
		if err != nil {
			return nil, err
		}
		return paramstore.NewKeySource(getter, m.APIKeyParam)
	}
	// Local endpoints such as Ollama accept any bearer token.
	return openai.StaticKey("not-needed"), nil
}

// awsClients loads the AWS SDK configuration once, only when a component
// actually needs it (SSM-sourced credentials or the checkpoint table).
type awsClients struct {
	ctx    context.Context
	loaded bool
	cfg    awssdk.Config
	ssmCli *paramstore.Client
	ddbCli *awsdynamodb.Client
}

func (a *awsClients) config() (awssdk.Config, error) {
	if !a.loaded {
		cfg, err := awsconfig.LoadDefaultConfig(a.ctx)
		if err != nil {
			return awssdk.Config{}, fmt.Errorf("load AWS config: %w", err)
		}
		a.cfg = cfg
		a.loaded = true
	}
	return a.cfg, nil
}

func (a *awsClients) params() (paramstore.Getter, error) {
	if a.ssmCli == nil {
		cfg, err := a.config()
		if err != nil {
			return nil, err
		}
		cli, err := paramstore.New(awsssm.NewFromConfig(cfg))
		if err != nil {
			return nil, err
		}
		a.ssmCli = cli
	}
	return a.ssmCli, nil
}

func (a *awsClients) dynamo() (*awsdynamodb.Client, error) {
	if a.ddbCli == nil {
		cfg, err := a.config()
		if err != nil {
			return nil, err
		}
		a.ddbCli = awsdynamodb.NewFromConfig(cfg)
	}
	return a.ddbCli, nil
}
