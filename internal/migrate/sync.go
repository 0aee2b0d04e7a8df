package migrate

import (
	"context"
	"log/slog"

	"avatarmig/internal/logging"
	"avatarmig/internal/profile"
	"avatarmig/internal/services"
	"avatarmig/internal/services/change"
)

// ChunkSize is the number of patches submitted per bulk update.
const ChunkSize = 4

// ChunkResult describes one submitted chunk. Index is 0-based.
type ChunkResult struct {
	Index   int
	Size    int
	UserIDs []string
	Err     error
}

// OK reports whether the chunk was accepted.
func (c ChunkResult) OK() bool {
	return c.Err == nil
}

// SyncReport collects chunk results in submission order.
type SyncReport struct {
	Chunks []ChunkResult
}

// Synced returns the number of patches in accepted chunks.
func (r SyncReport) Synced() int {
	total := 0
	for _, chunk := range r.Chunks {
		if chunk.OK() {
			total += chunk.Size
		}
	}
	return total
}

// Failed returns the number of patches in rejected chunks.
func (r SyncReport) Failed() int {
	total := 0
	for _, chunk := range r.Chunks {
		if !chunk.OK() {
			total += chunk.Size
		}
	}
	return total
}

// FailedChunks returns the rejected chunks.
func (r SyncReport) FailedChunks() []ChunkResult {
	var out []ChunkResult
	for _, chunk := range r.Chunks {
		if !chunk.OK() {
			out = append(out, chunk)
		}
	}
	return out
}

// Syncer pushes patches to the change API in fixed-size chunks. A rejected
// chunk is recorded and later chunks are still submitted.
type Syncer struct {
	updater change.Updater
	logger  *slog.Logger
}

// NewSyncer builds a Syncer around updater.
func NewSyncer(updater change.Updater, logger *slog.Logger) *Syncer {
	return &Syncer{updater: updater, logger: logging.NewComponentLogger(logger, "syncer")}
}

// Chunks splits patches into consecutive groups of at most ChunkSize.
func Chunks(patches []profile.Patch) [][]profile.Patch {
	if len(patches) == 0 {
		return nil
	}
	out := make([][]profile.Patch, 0, (len(patches)+ChunkSize-1)/ChunkSize)
	for start := 0; start < len(patches); start += ChunkSize {
		end := min(start+ChunkSize, len(patches))
		out = append(out, patches[start:end:end])
	}
	return out
}

// Sync submits every chunk in order and reports the outcome of each.
func (s *Syncer) Sync(ctx context.Context, patches []profile.Patch) SyncReport {
	chunks := Chunks(patches)
	report := SyncReport{Chunks: make([]ChunkResult, 0, len(chunks))}
	for index, chunk := range chunks {
		chunkCtx := services.WithChunk(ctx, index)
		logger := logging.WithContext(chunkCtx, s.logger)

		result := ChunkResult{Index: index, Size: len(chunk), UserIDs: userIDs(chunk)}
		if err := ctx.Err(); err != nil {
			result.Err = services.Wrap(services.ErrNetwork, "syncer", "update", "run cancelled before submission", err)
		} else {
			result.Err = s.updater.Update(chunkCtx, chunk)
		}
		report.Chunks = append(report.Chunks, result)

		if result.Err != nil {
			attrs := append(logging.ErrorAttrs(result.Err),
				logging.Int("size", result.Size),
				logging.Any("user_ids", result.UserIDs),
				logging.String(logging.FieldErrorHint, "re-run the migration to resubmit these profiles"),
			)
			logging.ErrorWithContext(logger, "sync chunk rejected", "sync_chunk_failed", attrs...)
			continue
		}
		logger.Debug("sync chunk accepted",
			logging.String(logging.FieldEventType, "sync_chunk_ok"),
			logging.Int("size", result.Size),
		)
	}
	return report
}

func userIDs(chunk []profile.Patch) []string {
	ids := make([]string, 0, len(chunk))
	for _, patch := range chunk {
		ids = append(ids, patch.UserIDValue())
	}
	return ids
}
