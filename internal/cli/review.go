package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/Veraticus/spice-intake/internal/common"
	"github.com/Veraticus/spice-intake/internal/model"
	"github.com/Veraticus/spice-intake/internal/pipeline"
)

// Confirmer settles deferred expenses.
type Confirmer interface {
	Confirm(ctx context.Context, userID, pendingID string, overrides pipeline.Overrides) (*model.FinalExpense, error)
	Reject(ctx context.Context, userID, pendingID string) error
}

// ReviewStats counts what happened during a review session.
type ReviewStats struct {
	Confirmed int
	Rejected  int
	Skipped   int
}

// Reviewer walks a user through their deferred expenses one at a time.
type Reviewer struct {
	reader    *LineReader
	writer    io.Writer
	confirmer Confirmer
	logger    *slog.Logger
}

// NewReviewer creates a reviewer reading answers from r and writing to w.
func NewReviewer(r io.Reader, w io.Writer, confirmer Confirmer, logger *slog.Logger) *Reviewer {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &Reviewer{
		reader:    NewLineReader(r),
		writer:    w,
		confirmer: confirmer,
		logger:    common.OrDefault(logger),
	}
}

// Review prompts for each pending expense. Quitting early is not an error;
// the stats reflect what was settled before.
func (rv *Reviewer) Review(ctx context.Context, userID string, pending []model.PendingExpense) (ReviewStats, error) {
	var stats ReviewStats

	for i, p := range pending {
		title := fmt.Sprintf("Pending expense %d of %d", i+1, len(pending))
		if _, err := fmt.Fprintln(rv.writer, RenderBox(title, FormatPending(p))); err != nil {
			return stats, fmt.Errorf("failed to write pending expense: %w", err)
		}
		if _, err := fmt.Fprint(rv.writer, reviewMenu); err != nil {
			return stats, fmt.Errorf("failed to write options: %w", err)
		}

		choice, err := rv.promptChoice(ctx, "Choice", []string{"c", "e", "a", "r", "s", "q"})
		if err != nil {
			return stats, err
		}

		var overrides pipeline.Overrides
		switch choice {
		case "q":
			stats.Skipped += len(pending) - i
			return stats, nil
		case "s":
			stats.Skipped++
			continue
		case "r":
			if err := rv.confirmer.Reject(ctx, userID, p.ID); err != nil {
				if rv.settledElsewhere(err, &stats) {
					continue
				}
				return stats, err
			}
			stats.Rejected++
			rv.say(FormatWarning("Rejected " + p.ID))
			continue
		case "e":
			category, err := rv.promptText(ctx, "Category")
			if err != nil {
				return stats, err
			}
			overrides.Category = &category
		case "a":
			amount, err := rv.promptAmount(ctx)
			if err != nil {
				return stats, err
			}
			overrides.Amount = &amount
		}

		final, err := rv.confirmer.Confirm(ctx, userID, p.ID, overrides)
		if err != nil {
			if rv.settledElsewhere(err, &stats) {
				continue
			}
			if errors.Is(err, pipeline.ErrIncompleteExpense) {
				rv.say(FormatError("This expense has no amount; choose [A] to enter one."))
				stats.Skipped++
				continue
			}
			return stats, err
		}
		stats.Confirmed++
		rv.say(FormatSuccess(fmt.Sprintf("Saved expense #%d: %.2f %s, %s",
			final.ID, final.Amount, final.Currency, final.Category)))
	}

	return stats, nil
}

const reviewMenu = `  [C] Confirm as shown
  [E] Change category and confirm
  [A] Change amount and confirm
  [R] Reject
  [S] Skip for now
  [Q] Quit

`

// settledElsewhere reports a record another session already closed.
func (rv *Reviewer) settledElsewhere(err error, stats *ReviewStats) bool {
	if !errors.Is(err, pipeline.ErrPendingClosed) && !errors.Is(err, pipeline.ErrPendingNotFound) {
		return false
	}
	rv.say(FormatWarning("Already settled, skipping."))
	stats.Skipped++
	return true
}

func (rv *Reviewer) say(line string) {
	if _, err := fmt.Fprintln(rv.writer, line); err != nil {
		rv.logger.Warn("Failed to write review output", "error", err)
	}
}

func (rv *Reviewer) promptChoice(ctx context.Context, prompt string, validChoices []string) (string, error) {
	for {
		if _, err := fmt.Fprint(rv.writer, FormatPrompt(prompt)); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}

		input, err := rv.reader.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "q", nil
			}
			return "", err
		}

		choice := strings.ToLower(input)
		for _, valid := range validChoices {
			if choice == valid {
				return choice, nil
			}
		}
		rv.say(FormatError("Invalid choice. Please try again."))
	}
}

func (rv *Reviewer) promptText(ctx context.Context, prompt string) (string, error) {
	for {
		if _, err := fmt.Fprint(rv.writer, FormatPrompt(prompt)); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}
		input, err := rv.reader.ReadLine(ctx)
		if err != nil {
			return "", err
		}
		if input != "" {
			return input, nil
		}
		rv.say(FormatError("A value is required."))
	}
}

func (rv *Reviewer) promptAmount(ctx context.Context) (float64, error) {
	for {
		input, err := rv.promptText(ctx, "Amount")
		if err != nil {
			return 0, err
		}
		amount, err := strconv.ParseFloat(strings.ReplaceAll(input, ",", ""), 64)
		if err == nil && amount > 0 {
			return amount, nil
		}
		rv.say(FormatError("Enter a positive number such as 25.50."))
	}
}

// FormatPending renders the fields a reviewer needs to decide.
func FormatPending(p model.PendingExpense) string {
	ext := p.Provisional.Extracted

	amount := WarningStyle.Render("missing")
	if ext.HasAmount() {
		amount = fmt.Sprintf("%.2f %s", *ext.Amount, ext.Currency)
	}

	match := SubtleStyle.Render("none")
	if p.Match.Matched() {
		match = fmt.Sprintf("%s %q → %s", p.Match.MatchType, p.Match.MatchedName, p.Match.Category)
	}

	lines := []string{
		"Input:       " + ext.RawText,
		"Amount:      " + amount,
		"Description: " + ext.DescriptionOr(SubtleStyle.Render("none")),
		"Category:    " + p.Provisional.Category,
		"Match:       " + match,
		fmt.Sprintf("Confidence:  %.2f", p.Provisional.ConfidenceScore),
		"Received:    " + p.Provisional.CreatedAt.Local().Format("2006-01-02 15:04"),
	}
	for _, note := range p.Provisional.ValidationNotes {
		lines = append(lines, SubtleStyle.Render("• "+note))
	}
	lines = append(lines, SubtleStyle.Render("ID "+p.ID))
	return strings.Join(lines, "\n")
}
