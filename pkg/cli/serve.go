package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/advisory-lab/themis/pkg/cli/config"
	httpctrl "github.com/advisory-lab/themis/pkg/controller/http"
	"github.com/advisory-lab/themis/pkg/service/cache"
	"github.com/advisory-lab/themis/pkg/service/conversation"
	"github.com/advisory-lab/themis/pkg/service/rerank"
	"github.com/advisory-lab/themis/pkg/service/retrieval"
	"github.com/advisory-lab/themis/pkg/usecase"
	"github.com/advisory-lab/themis/pkg/utils/logging"
	"github.com/advisory-lab/themis/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var policyPath string
	var repoCfg config.Repository
	var geminiCfg config.Gemini
	var reviewCfg config.Review

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("THEMIS_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "policy",
			Usage:       "Path to the TOML validation policy file (built-in defaults when omitted)",
			Sources:     cli.EnvVars("THEMIS_POLICY"),
			Destination: &policyPath,
		},
	}

	// Add shared config flags
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, reviewCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			policy, err := config.LoadPolicy(policyPath)
			if err != nil {
				return goerr.Wrap(err, "failed to load validation policy")
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer safe.Close(ctx, repo)

			llmClient, err := geminiCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to configure LLM client")
			}

			retriever, err := retrieval.New(repo, llmClient,
				retrieval.WithTopK(policy.Retrieval.TopK),
				retrieval.WithMinRuleConfidence(policy.Retrieval.MinRuleConfidence),
			)
			if err != nil {
				return goerr.Wrap(err, "failed to build retrieval service")
			}

			reranker, err := rerank.New(policy.RerankWeights(),
				rerank.WithPhaseDomains(policy.PhaseDomains()),
			)
			if err != nil {
				return goerr.Wrap(err, "failed to build re-ranker")
			}

			tracker, err := conversation.New(policy.TrackerOptions()...)
			if err != nil {
				return goerr.Wrap(err, "failed to build conversation tracker")
			}

			generator, err := usecase.NewGenerator(llmClient)
			if err != nil {
				return goerr.Wrap(err, "failed to build guidance generator")
			}

			validator, err := buildValidator(policy, llmClient)
			if err != nil {
				return goerr.Wrap(err, "failed to build validator")
			}

			cacheTTL, err := policy.CacheTTL()
			if err != nil {
				return err
			}
			validationCache, err := cache.New(policy.Cache.Size, cacheTTL)
			if err != nil {
				return goerr.Wrap(err, "failed to build validation cache")
			}

			reviewQueue, fallbackLog, err := reviewCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure review queue")
			}

			ucOpts := []usecase.Option{
				usecase.WithFallbackLog(fallbackLog),
				usecase.WithValidationCache(validationCache),
				usecase.WithDefaultStrategy(policy.DefaultStrategy()),
			}
			if reviewQueue != nil {
				ucOpts = append(ucOpts, usecase.WithReviewQueue(reviewQueue))
			}
			if policy.Strategy.HoldingMessage != "" {
				ucOpts = append(ucOpts, usecase.WithHoldingMessage(policy.Strategy.HoldingMessage))
			}

			uc := usecase.New(repo, retriever, reranker, tracker, generator, validator, ucOpts...)

			httpHandler, err := httpctrl.New(uc)
			if err != nil {
				return goerr.Wrap(err, "failed to create http server")
			}
			server := &http.Server{
				Addr:              addr,
				Handler:           httpHandler,
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				// Background validation tasks finish before the repository
				// closes so every delivered turn gets its audit record.
				if err := uc.Workers().Drain(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to drain background tasks")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
