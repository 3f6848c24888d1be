package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-intake/internal/cli"
	"github.com/Veraticus/spice-intake/internal/model"
	"github.com/Veraticus/spice-intake/internal/pipeline"
)

func processCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process [text...]",
		Short: "Run expenses through the intake pipeline",
		Long: `Process a single expense given as text, a binary receipt with --input,
or a file of expenses (one per line) with --file.

Examples:
  intake process --user ana "Lunch at Sanborns 250 pesos"
  intake process --user ana --type image --input receipt.jpg
  intake process --user ana --file expenses.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, opts, args)
		},
	}

	cmd.Flags().StringP("user", "u", "", "user submitting the expense")
	cmd.Flags().StringP("type", "t", string(model.InputText), "input type (text, image, audio, document)")
	cmd.Flags().StringP("input", "i", "", "read the payload from this file")
	cmd.Flags().StringP("file", "f", "", "process every non-empty line of this file as a text expense")
	_ = cmd.MarkFlagRequired("user")
	cmd.MarkFlagsMutuallyExclusive("input", "file")

	return cmd
}

func runProcess(cmd *cobra.Command, opts *rootOptions, args []string) error {
	user, _ := cmd.Flags().GetString("user")
	kind, _ := cmd.Flags().GetString("type")
	inputPath, _ := cmd.Flags().GetString("input")
	linesPath, _ := cmd.Flags().GetString("file")

	ctx := cmd.Context()
	a, err := newApp(ctx, opts.cfg, appOptions{oracle: true})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()

	if linesPath != "" {
		return processLines(ctx, out, a.pipeline, user, linesPath)
	}

	var payload []byte
	switch {
	case inputPath != "":
		payload, err = os.ReadFile(inputPath) // #nosec G304 -- path supplied by the operator
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
	case len(args) > 0:
		payload = []byte(strings.Join(args, " "))
	default:
		return errors.New("nothing to process: pass text, --input or --file")
	}

	result, err := a.pipeline.Process(ctx, model.RawInput{
		UserID:  user,
		Type:    model.ParseInputType(kind),
		Payload: payload,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, describeResult(result))
	return err
}

// processLines runs each line as its own text submission. A failing line is
// reported and the batch continues.
func processLines(ctx context.Context, out io.Writer, p *pipeline.Pipeline, user, path string) error {
	lines, err := readLines(path)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		_, err := fmt.Fprintln(out, cli.FormatInfo("No expenses in "+path))
		return err
	}

	handler := cli.NewInterruptHandler(out, "Expenses already processed have been saved.")
	ctx, cancel := handler.HandleInterrupts(ctx)
	defer cancel()

	bar := cli.NewProgressBar(out, len(lines), "Processing expenses")

	counts := make(map[pipeline.Outcome]int)
	var failures []string
	for i, line := range lines {
		if ctx.Err() != nil {
			break
		}
		result, err := p.Process(ctx, model.NewTextInput(user, line))
		if err != nil {
			failures = append(failures, fmt.Sprintf("line %d: %v", i+1, err))
		} else {
			counts[result.Outcome]++
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	if handler.WasInterrupted() {
		return ctx.Err()
	}

	summary := fmt.Sprintf("Saved: %d\nDeferred for review: %d\nAborted: %d\nFailed: %d",
		counts[pipeline.OutcomeFinalized], counts[pipeline.OutcomeDeferred],
		counts[pipeline.OutcomeAborted], len(failures))
	fmt.Fprintln(out, cli.RenderBox("Batch Summary", summary))
	for _, f := range failures {
		fmt.Fprintln(out, cli.FormatError(f))
	}
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path) // #nosec G304 -- path supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

func describeResult(r *pipeline.Result) string {
	switch r.Outcome {
	case pipeline.OutcomeFinalized:
		e := r.Expense
		return cli.FormatSuccess(fmt.Sprintf("Saved expense #%d: %.2f %s, %s (%s)",
			e.ID, e.Amount, e.Currency, e.Category, e.InitialProcessingMethod))
	case pipeline.OutcomeDeferred:
		return cli.FormatWarning(fmt.Sprintf("Deferred for review (%s, confidence %.2f): pending %s",
			r.Reason, r.Confidence, r.Pending.ID))
	default:
		return cli.FormatError(fmt.Sprintf("Aborted: %s", r.Reason))
	}
}
