package migrate

import (
	"context"

	"avatarmig/internal/eligibility"
	"avatarmig/internal/logging"
	"avatarmig/internal/services"
	"avatarmig/internal/services/person"
	"avatarmig/internal/source"
)

// LegacyPicture describes one profile that still references legacy storage.
// Location is where the migration would read the image from; it is empty
// for incomplete entries.
type LegacyPicture struct {
	Page       int
	UserID     string
	UUID       string
	Email      string
	PictureURL string
	Location   string
	Missing    []string
}

// Complete reports whether the entry can be migrated.
func (l LegacyPicture) Complete() bool {
	return len(l.Missing) == 0
}

// ListLegacy walks the listing without fetching, writing, or syncing
// anything and returns every legacy profile, including incomplete ones.
func (o *Orchestrator) ListLegacy(ctx context.Context) ([]LegacyPicture, error) {
	logger := logging.WithContext(ctx, o.logger)
	var out []LegacyPicture
	pager := person.NewPager(o.lister)
	for batch, err := range pager.All(ctx) {
		if err != nil {
			return out, err
		}
		page := pager.Pages()
		for _, malformed := range batch.Malformed {
			logging.WarnWithContext(logging.WithContext(services.WithPage(ctx, page), o.logger), "malformed profile ignored", "profile_malformed",
				logging.Error(malformed),
				logging.String(logging.FieldImpact, "profile not listed"),
			)
		}
		for _, p := range batch.Items {
			verdict := o.filter.Classify(p)
			if verdict.Status == eligibility.NotLegacy {
				continue
			}
			entry := LegacyPicture{
				Page:       page,
				UserID:     p.UserID.ValueOrZero(),
				UUID:       p.UUID.ValueOrZero(),
				Email:      p.PrimaryEmail.ValueOrZero(),
				PictureURL: p.Picture.ValueOrZero(),
				Missing:    verdict.Missing,
			}
			if verdict.Status == eligibility.Eligible {
				entry.Location = o.source.Locate(source.Request{UserID: entry.UserID, UUID: entry.UUID, PictureURL: entry.PictureURL})
			}
			out = append(out, entry)
		}
	}
	logger.Info("legacy listing finished",
		logging.String(logging.FieldEventType, "list_summary"),
		logging.Int("pages", pager.Pages()),
		logging.Int("legacy", len(out)),
	)
	return out, nil
}
