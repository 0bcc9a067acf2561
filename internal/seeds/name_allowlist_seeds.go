// Package seeds loads the initial name allowlist so common, clearly-human
// first names skip the moderation queue entirely (SPEC_FULL.md C7 moderation
// fast-path). Grounded in the teacher's internal/seeds/marketplace_seeds.go
// category-seeding loop, repurposed from marketplace categories to profile
// names.
package seeds

import (
	"context"
	"log/slog"

	"github.com/jutuon/afrodite-backend-sub001/internal/moderation"
)

// commonFirstNames is a small starter set. moderation.Queue.AddAllowlistEntry
// is the only writer of the allowlist; accepting a ProfileName item through
// Moderate does not add the name to it.
var commonFirstNames = []string{
	"James", "Mary", "John", "Patricia", "Robert", "Jennifer", "Michael",
	"Linda", "William", "Elizabeth", "David", "Barbara", "Richard", "Susan",
	"Joseph", "Jessica", "Thomas", "Sarah", "Charles", "Karen",
}

type NameAllowlistSeeder struct {
	queue *moderation.Queue
}

func NewNameAllowlistSeeder(queue *moderation.Queue) *NameAllowlistSeeder {
	return &NameAllowlistSeeder{queue: queue}
}

func (s *NameAllowlistSeeder) SeedCommonNames(ctx context.Context) error {
	slog.Info("seeding name allowlist", "count", len(commonFirstNames))
	for _, name := range commonFirstNames {
		if err := s.queue.AddAllowlistEntry(ctx, name); err != nil {
			slog.Error("failed to seed allowlist entry", "name", name, "error", err)
			return err
		}
	}
	slog.Info("name allowlist seeded")
	return nil
}
