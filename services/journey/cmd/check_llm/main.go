// Command check_llm smoke-tests the configured LLM providers: one reply
// generation call and one function-calling extraction call, in parallel.
// Exit status is non-zero when either probe fails, so it can gate deploys.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Discovita/testing-grounds/pkg/ai"
	"github.com/Discovita/testing-grounds/services/journey/internal/app"
	"github.com/Discovita/testing-grounds/services/journey/internal/config"
)

const probeTimeout = 30 * time.Second

func main() {
	path := ""
	if len(os.Args) > 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [config.yaml]\n", os.Args[0])
		os.Exit(2)
	}
	if len(os.Args) == 2 {
		path = os.Args[1]
	}

	cfg, err := config.Load(path)
	if err != nil {
		exitErr(err)
	}

	appCfg := app.Config{
		GenerationProvider: cfg.GenerationProvider,
		GenerationBaseURL:  cfg.GenerationBaseURL,
		GenerationAPIKey:   cfg.GenerationAPIKey,
		GenerationModel:    cfg.GenerationModel,
		GeminiAPIKey:       cfg.GeminiAPIKey,
		OllamaBaseURL:      cfg.OllamaBaseURL,
		ExtractionProvider: cfg.ExtractionProvider,
		ExtractionBaseURL:  cfg.ExtractionBaseURL,
		ExtractionAPIKey:   cfg.ExtractionAPIKey,
		ExtractionModel:    cfg.ExtractionModel,
	}
	generator, err := app.NewGenerator(appCfg)
	if err != nil {
		exitErr(err)
	}
	extractor, err := app.NewExtractor(appCfg)
	if err != nil {
		exitErr(err)
	}
	schema, err := app.LoadSchema(cfg.SchemaFile)
	if err != nil {
		exitErr(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	g.Go(func() error {
		return probeGeneration(gctx, generator, cfg.GenerationModel)
	})
	g.Go(func() error {
		return probeExtraction(gctx, extractor, schema, cfg.ExtractionModel)
	})
	if err := g.Wait(); err != nil {
		exitErr(err)
	}

	fmt.Println("LLM connectivity check passed.")
}

func probeGeneration(ctx context.Context, generator ai.TextGenerator, model string) error {
	reply, err := generator.GenerateChat(ctx,
		"You are a home renovation advisor. Reply with a single short sentence.",
		[]ai.ChatMessage{{Role: ai.RoleUser, Content: "Confirm you are ready to help."}})
	if err != nil {
		return fmt.Errorf("generation probe (%s): %w", model, err)
	}
	if strings.TrimSpace(reply) == "" {
		return fmt.Errorf("generation probe (%s): empty reply", model)
	}
	fmt.Printf("generation ok: %s\n", model)
	return nil
}

func probeExtraction(ctx context.Context, extractor ai.FunctionCaller, schema app.Schema, model string) error {
	prompt := "You track a home renovation conversation for journey j-probe. " +
		"The user just said: \"We want to renovate our kitchen.\" " +
		"Record the room they mentioned by calling update_journey with journey_id j-probe."
	call, err := extractor.CallFunction(ctx, prompt, nil, app.UpdateJourneyFunction(schema))
	if err != nil {
		return fmt.Errorf("extraction probe (%s): %w", model, err)
	}
	if call == nil {
		return fmt.Errorf("extraction probe (%s): model did not call update_journey", model)
	}
	if call.Name != "update_journey" {
		return fmt.Errorf("extraction probe (%s): unexpected function %q", model, call.Name)
	}
	fmt.Printf("extraction ok: %s called %s(%v)\n", model, call.Name, call.Arguments)
	return nil
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
