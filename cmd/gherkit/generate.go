package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/gherkit/pkg/models"
)

func newGenerateCmd() *cobra.Command {
	var (
		configPath string
		url        string
		headless   string
		model      string
		output     string
		customTest string
		mode       string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate Gherkin scenarios for a web page",
		Example: `  gherkit generate --url https://example.com
  gherkit generate --url https://example.com --custom-test steps.txt
  cat steps.txt | gherkit generate --url https://example.com --custom-test -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.GenerationRequest{
				URL:        url,
				Model:      model,
				OutputPath: output,
			}
			var headlessOverride *bool
			if headless != "" {
				h, err := strconv.ParseBool(headless)
				if err != nil {
					return fmt.Errorf("--headless must be true or false, got %q", headless)
				}
				headlessOverride = &h
			}

			m, ok := models.ParseMode(mode)
			if !ok {
				return fmt.Errorf("--mode must be auto or custom, got %q", mode)
			}
			req.Mode = m
			if customTest != "" {
				steps, source, err := readSteps(customTest, cmd.InOrStdin())
				if err != nil {
					return err
				}
				req.Instructions = steps
				req.SourceName = source
				req.Mode = models.ModeCustom
			} else if m == models.ModeCustom {
				return fmt.Errorf("--mode custom needs --custom-test")
			}

			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			req.Headless = cfg.Browser.Headless
			if headlessOverride != nil {
				req.Headless = *headlessOverride
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.withPipeline(); err != nil {
				return err
			}

			return runGenerate(ctx, a, req, cmd.OutOrStdout())
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&url, "url", "", "page to generate scenarios for")
	cmd.Flags().StringVar(&headless, "headless", "", "run the browser headless: true or false (default from config)")
	cmd.Flags().StringVar(&model, "model", "", "inference model (default from config or OPENAI_MODEL)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the feature file to this path")
	cmd.Flags().StringVar(&customTest, "custom-test", "", "plain-text test steps file, or - for stdin")
	cmd.Flags().StringVar(&mode, "mode", string(models.ModeAuto), "generation mode: auto or custom")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

// readSteps loads custom test steps from path, or from stdin when path is "-".
func readSteps(path string, stdin io.Reader) (steps, source string, err error) {
	var data []byte
	if path == "-" {
		source = "stdin"
		data, err = io.ReadAll(stdin)
	} else {
		source = path
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", "", fmt.Errorf("read custom test steps: %w", err)
	}
	steps = strings.TrimSpace(string(data))
	if steps == "" {
		return "", "", fmt.Errorf("custom test steps from %s are empty", source)
	}
	return steps, source, nil
}

func runGenerate(ctx context.Context, a *app, req models.GenerationRequest, out io.Writer) error {
	res, err := a.orch.Run(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Run:    %s\n", res.RunID)
	fmt.Fprintf(out, "Mode:   %s\n", res.Metadata["mode"])
	fmt.Fprintf(out, "Output: %s\n\n", res.OutputPath)
	fmt.Fprintln(out, res.GherkinText)
	return nil
}
