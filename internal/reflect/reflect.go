// Package reflect runs the offline reflection job: it reads session
// diaries, asks the reflector for proposed deltas, validates additions,
// and curates the global and project playbooks under file locks.
package reflect

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/playbookd/internal/curation"
	"github.com/fyrsmithlabs/playbookd/internal/llm"
	"github.com/fyrsmithlabs/playbookd/internal/playbook"
	"github.com/fyrsmithlabs/playbookd/internal/store"
	"github.com/fyrsmithlabs/playbookd/internal/validation"
)

// maxDiaryBytes bounds how much of a session diary is sent to the
// reflector. Oversized diaries are truncated from the front so the most
// recent activity survives.
const maxDiaryBytes = 256 * 1024

// Options configures a single reflection run.
type Options struct {
	// Sessions are paths to session diary files, processed in order.
	Sessions []string

	// GlobalPath and ProjectPath locate the two playbook files.
	// ProjectPath may be empty when no repository playbook exists.
	GlobalPath  string
	ProjectPath string

	// Force reprocesses sessions already present in the processed log.
	Force bool
}

// SessionSummary reports the outcome for one session.
type SessionSummary struct {
	SessionPath string `json:"sessionPath"`
	Skipped     bool   `json:"skipped"`
	SkipReason  string `json:"skipReason,omitempty"`
	Extracted   int    `json:"extracted"`
	Rejected    int    `json:"rejected"`
	Applied     int    `json:"applied"`
	Err         string `json:"error,omitempty"`
}

// Report aggregates a reflection run.
type Report struct {
	Sessions      []SessionSummary         `json:"sessions"`
	GlobalResult  *playbook.CurationResult `json:"globalResult,omitempty"`
	ProjectResult *playbook.CurationResult `json:"projectResult,omitempty"`
	StartedAt     time.Time                `json:"startedAt"`
	CompletedAt   time.Time                `json:"completedAt"`
}

// Runner executes reflection runs. Sessions are processed sequentially;
// a failing session is reported and the run continues.
type Runner struct {
	store     *store.Store
	engine    *curation.Engine
	reflector llm.Reflector
	pipeline  *validation.Pipeline
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock overrides the runner's time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner wires a reflection runner. The pipeline may be nil, in which
// case extracted additions are applied unvalidated as drafts.
func NewRunner(st *store.Store, engine *curation.Engine, reflector llm.Reflector, pipeline *validation.Pipeline, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		store:     st,
		engine:    engine,
		reflector: reflector,
		pipeline:  pipeline,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes the given sessions and curates both playbooks under file
// locks. The whole run holds the locks so concurrent reflections cannot
// interleave partial updates.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{StartedAt: r.now()}

	err := store.WithLocks(opts.GlobalPath, opts.ProjectPath, func() error {
		return r.runLocked(ctx, opts, report)
	})
	report.CompletedAt = r.now()
	if err != nil {
		return report, err
	}
	return report, nil
}

func (r *Runner) runLocked(ctx context.Context, opts Options, report *Report) error {
	global, err := r.store.Load(opts.GlobalPath)
	if err != nil {
		return fmt.Errorf("loading global playbook: %w", err)
	}
	var project *playbook.Playbook
	if opts.ProjectPath != "" {
		if project, err = r.store.Load(opts.ProjectPath); err != nil {
			return fmt.Errorf("loading project playbook: %w", err)
		}
	}

	processedPath := store.ProcessedLogPath(opts.GlobalPath)
	processed, err := r.store.LoadProcessed(processedPath)
	if err != nil {
		return fmt.Errorf("loading processed log: %w", err)
	}

	ctxView := playbook.NewContextView(global, project)
	existing := formatBullets(ctxView)

	var globalDeltas, projectDeltas []playbook.Delta
	var records []store.ProcessedRecord
	sessionsApplied := 0
	for _, sessionPath := range opts.Sessions {
		// A run can be long; honor cancellation between sessions.
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		summary := r.processSession(ctx, sessionPath, processed, existing, opts.Force)
		report.Sessions = append(report.Sessions, summary.SessionSummary)
		if summary.Err != "" || summary.Skipped {
			continue
		}
		sessionsApplied++
		for _, d := range summary.accepted {
			if routeToGlobal(d, global, project) {
				globalDeltas = append(globalDeltas, d)
			} else {
				projectDeltas = append(projectDeltas, d)
			}
		}
		records = append(records, store.ProcessedRecord{
			SessionPath: sessionPath,
			ProcessedAt: r.now(),
			Deltas:      len(summary.accepted),
		})
	}

	report.GlobalResult = r.engine.Curate(global, globalDeltas, ctxView)
	global.Metadata.LastReflectionAt = r.now()
	global.Metadata.TotalSessionsProcessed += sessionsApplied
	if err := r.store.Save(opts.GlobalPath, global); err != nil {
		return fmt.Errorf("saving global playbook: %w", err)
	}

	if project != nil {
		report.ProjectResult = r.engine.Curate(project, projectDeltas, ctxView)
		project.Metadata.LastReflectionAt = r.now()
		project.Metadata.TotalSessionsProcessed += sessionsApplied
		if err := r.store.Save(opts.ProjectPath, project); err != nil {
			return fmt.Errorf("saving project playbook: %w", err)
		}
	}

	// Sessions are marked processed only once both playbooks are safely
	// on disk; a failed save leaves them eligible for a retry.
	for _, rec := range records {
		if aerr := r.store.AppendProcessed(processedPath, rec); aerr != nil {
			return fmt.Errorf("recording processed session: %w", aerr)
		}
	}
	return nil
}

type sessionOutcome struct {
	SessionSummary
	accepted []playbook.Delta
}

// processSession extracts and validates deltas for one session. Errors
// are captured in the summary, never propagated, so one bad diary cannot
// abort the run.
func (r *Runner) processSession(ctx context.Context, sessionPath string, processed map[string]store.ProcessedRecord, existing string, force bool) sessionOutcome {
	out := sessionOutcome{SessionSummary: SessionSummary{SessionPath: sessionPath}}

	if _, seen := processed[sessionPath]; seen && !force {
		out.Skipped = true
		out.SkipReason = "already processed"
		return out
	}

	diary, err := readDiary(sessionPath)
	if err != nil {
		out.Err = err.Error()
		r.logger.Warn("session unreadable", zap.String("session", sessionPath), zap.Error(err))
		return out
	}
	if strings.TrimSpace(diary) == "" {
		out.Skipped = true
		out.SkipReason = "empty diary"
		return out
	}

	deltas, err := r.reflector.ExtractDeltas(ctx, diary, existing, "")
	if err != nil {
		out.Err = fmt.Sprintf("extracting deltas: %v", err)
		r.logger.Warn("delta extraction failed", zap.String("session", sessionPath), zap.Error(err))
		return out
	}
	out.Extracted = len(deltas)

	for _, d := range deltas {
		d = stampSource(d, sessionPath)
		if r.pipeline != nil {
			res := r.pipeline.ValidateDelta(ctx, d)
			if !res.Valid {
				out.Rejected++
				continue
			}
			if add, ok := d.(playbook.AddDelta); ok && res.SuggestedState != "" {
				add.SuggestedState = res.SuggestedState
				d = add
			}
		}
		out.accepted = append(out.accepted, d)
	}
	out.Applied = len(out.accepted)
	return out
}

// stampSource records which session produced an extracted delta.
func stampSource(d playbook.Delta, sessionPath string) playbook.Delta {
	switch v := d.(type) {
	case playbook.AddDelta:
		if v.SourceSession == "" {
			v.SourceSession = sessionPath
		}
		return v
	case playbook.HelpfulDelta:
		if v.SessionPath == "" {
			v.SessionPath = sessionPath
		}
		return v
	case playbook.HarmfulDelta:
		if v.SessionPath == "" {
			v.SessionPath = sessionPath
		}
		return v
	default:
		return d
	}
}

// routeToGlobal decides which playbook a delta targets. New bullets
// follow their declared scope; deltas that reference an existing bullet
// go wherever that bullet lives.
func routeToGlobal(d playbook.Delta, global, project *playbook.Playbook) bool {
	if project == nil {
		return true
	}
	switch v := d.(type) {
	case playbook.AddDelta:
		return v.Scope == playbook.ScopeGlobal || v.Scope == ""
	case playbook.HelpfulDelta:
		return global.FindBullet(v.BulletID) != nil
	case playbook.HarmfulDelta:
		return global.FindBullet(v.BulletID) != nil
	case playbook.ReplaceDelta:
		return global.FindBullet(v.BulletID) != nil
	case playbook.DeprecateDelta:
		return global.FindBullet(v.BulletID) != nil
	case playbook.MergeDelta:
		return len(v.BulletIDs) > 0 && global.FindBullet(v.BulletIDs[0]) != nil
	default:
		return true
	}
}

// readDiary loads a session diary, keeping only the tail of oversized
// files.
func readDiary(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading session diary: %w", err)
	}
	if len(data) > maxDiaryBytes {
		data = data[len(data)-maxDiaryBytes:]
	}
	return string(data), nil
}

// formatBullets renders the active bullets as context for the reflector,
// one per line with id and content.
func formatBullets(view *playbook.ContextView) string {
	var b strings.Builder
	for _, bullet := range view.ActiveBullets() {
		fmt.Fprintf(&b, "[%s] (%s/%s) %s\n", bullet.ID, bullet.Category, bullet.Maturity, bullet.Content)
	}
	return b.String()
}
