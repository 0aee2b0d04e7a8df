package main

import (
	"time"

	"avatarmig/internal/ledger"
	"avatarmig/internal/migrate"
	"avatarmig/internal/services"
)

type runView struct {
	RunID      string        `json:"run_id"`
	DryRun     bool          `json:"dry_run"`
	State      string        `json:"state"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	DurationMS int64         `json:"duration_ms"`
	Pages      int           `json:"pages"`
	Scanned    int           `json:"scanned"`
	Eligible   int           `json:"eligible"`
	Incomplete int           `json:"incomplete"`
	Processed  int           `json:"processed"`
	Skipped    int           `json:"skipped"`
	Synced     int           `json:"synced"`
	Failed     int           `json:"failed"`
	Error      string        `json:"error,omitempty"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	Outcomes   []outcomeView `json:"outcomes"`
	Chunks     []chunkView   `json:"chunks"`
}

type outcomeView struct {
	Page         int      `json:"page"`
	UserID       string   `json:"user_id,omitempty"`
	UUID         string   `json:"uuid,omitempty"`
	Status       string   `json:"status"`
	State        string   `json:"state"`
	LegacyURL    string   `json:"legacy_url,omitempty"`
	InternalName string   `json:"internal_name,omitempty"`
	ExternalName string   `json:"external_name,omitempty"`
	Picture      string   `json:"picture,omitempty"`
	Missing      []string `json:"missing,omitempty"`
	SyncStatus   string   `json:"sync_status,omitempty"`
	Error        string   `json:"error,omitempty"`
	ErrorKind    string   `json:"error_kind,omitempty"`
}

type chunkView struct {
	Index   int      `json:"index"`
	Size    int      `json:"size"`
	UserIDs []string `json:"user_ids"`
	OK      bool     `json:"ok"`
	Error   string   `json:"error,omitempty"`
}

type legacyView struct {
	Page       int      `json:"page"`
	UserID     string   `json:"user_id,omitempty"`
	UUID       string   `json:"uuid,omitempty"`
	Email      string   `json:"primary_email,omitempty"`
	PictureURL string   `json:"picture"`
	Location   string   `json:"location,omitempty"`
	Missing    []string `json:"missing,omitempty"`
}

func newRunView(report migrate.Report) runView {
	view := runView{
		RunID:      report.RunID,
		DryRun:     report.DryRun,
		State:      string(report.State),
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		DurationMS: report.Duration().Milliseconds(),
		Pages:      report.Pages,
		Scanned:    report.Scanned,
		Eligible:   report.Eligible,
		Incomplete: report.Incomplete,
		Processed:  report.Processed,
		Skipped:    report.Skipped,
		Synced:     report.Synced,
		Failed:     report.Failed,
		Error:      errorText(report.Err),
		ErrorKind:  services.Kind(report.Err),
		Outcomes:   make([]outcomeView, 0, len(report.Outcomes)),
		Chunks:     make([]chunkView, 0, len(report.Sync.Chunks)),
	}

	syncStatus := make(map[string]string)
	for _, c := range report.Sync.Chunks {
		status := ledger.SyncStatusSynced
		if !c.OK() {
			status = ledger.SyncStatusFailed
		}
		for _, id := range c.UserIDs {
			syncStatus[id] = status
		}
		view.Chunks = append(view.Chunks, chunkView{
			Index:   c.Index,
			Size:    c.Size,
			UserIDs: c.UserIDs,
			OK:      c.OK(),
			Error:   errorText(c.Err),
		})
	}

	for _, o := range report.Outcomes {
		ov := outcomeView{
			Page:         o.Page,
			UserID:       o.UserID,
			UUID:         o.UUID,
			Status:       string(o.Status),
			State:        string(o.State),
			LegacyURL:    o.LegacyURL,
			InternalName: o.InternalName,
			ExternalName: o.ExternalName,
			Picture:      o.Picture,
			Missing:      o.Missing,
			Error:        errorText(o.Err),
			ErrorKind:    services.Kind(o.Err),
		}
		if o.Status == migrate.OutcomeMigrated {
			ov.SyncStatus = syncStatus[o.UserID]
		}
		view.Outcomes = append(view.Outcomes, ov)
	}
	return view
}

func newLegacyViews(pictures []migrate.LegacyPicture) []legacyView {
	views := make([]legacyView, 0, len(pictures))
	for _, p := range pictures {
		views = append(views, legacyView{
			Page:       p.Page,
			UserID:     p.UserID,
			UUID:       p.UUID,
			Email:      p.Email,
			PictureURL: p.PictureURL,
			Location:   p.Location,
			Missing:    p.Missing,
		})
	}
	return views
}
