package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"

	"github.com/prperemyshlev/photo-enhancer/internal/domain"
	"github.com/prperemyshlev/photo-enhancer/internal/repository"
	"github.com/prperemyshlev/photo-enhancer/internal/retry"
)

func listUsers(ctx context.Context, out io.Writer, users repository.UserRepository, policy retry.Policy, asJSON bool) error {
	var summaries []*domain.UserSummary
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		var err error
		summaries, err = users.ListWithSummary(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tIMAGES\tFREE\tPAYMENTS\tPAID\tCREATED")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%d\t%s\t%s\n",
			s.ID,
			s.Username,
			s.Email,
			s.ImagesProcessed,
			s.HasFreeAccess,
			s.CompletedPayments,
			formatMinorUnits(s.TotalPaid),
			s.CreatedAt.Format("2006-01-02"),
		)
	}
	return w.Flush()
}

func setFreeAccess(ctx context.Context, out io.Writer, users repository.UserRepository, policy retry.Policy, userID string, enabled bool) error {
	if _, err := uuid.Parse(userID); err != nil {
		return fmt.Errorf("invalid user id %q", userID)
	}

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		return users.SetFreeAccess(ctx, userID, enabled)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("user %s not found", userID)
	}
	if err != nil {
		return fmt.Errorf("failed to update free access: %w", err)
	}

	state := "revoked"
	if enabled {
		state = "granted"
	}
	fmt.Fprintf(out, "Free access %s for %s\n", state, userID)
	return nil
}

func pruneTokens(ctx context.Context, out io.Writer, tokens repository.TokenRepository, policy retry.Policy) error {
	var removed int64
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		var err error
		removed, err = tokens.DeleteExpired(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to prune tokens: %w", err)
	}

	fmt.Fprintf(out, "Removed %d expired refresh tokens\n", removed)
	return nil
}

// formatMinorUnits prints cents as a decimal amount
func formatMinorUnits(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}
