// Package store persists playbooks and the processed-session log on the
// local filesystem. Writes are atomic (temp file, fsync, rename) and all
// mutation paths are guarded by cross-process lock files.
package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
)

// Default locations. The global playbook lives under the user config dir;
// project playbooks live inside the repository they describe.
const (
	globalDirName    = "playbookd"
	projectDirName   = ".playbookd"
	playbookFileName = "playbook.json"
	processedLogName = "processed_sessions.jsonl"
)

// Config holds store paths.
type Config struct {
	// GlobalPath overrides the global playbook location. Empty means
	// ~/.config/playbookd/playbook.json.
	GlobalPath string `koanf:"global_path"`

	// ProjectDir overrides the per-repo state directory name.
	ProjectDir string `koanf:"project_dir"`
}

// DefaultConfig returns the standard store paths.
func DefaultConfig() Config {
	return Config{ProjectDir: projectDirName}
}

// GlobalPlaybookPath resolves the global playbook file location.
func GlobalPlaybookPath(cfg Config) (string, error) {
	if cfg.GlobalPath != "" {
		return cfg.GlobalPath, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config dir: %w", err)
	}
	return filepath.Join(base, globalDirName, playbookFileName), nil
}

// ProjectPlaybookPath resolves the playbook location inside a repository.
func ProjectPlaybookPath(cfg Config, repoRoot string) string {
	dir := cfg.ProjectDir
	if dir == "" {
		dir = projectDirName
	}
	return filepath.Join(repoRoot, dir, playbookFileName)
}

// ProcessedLogPath resolves the processed-session log next to a playbook.
func ProcessedLogPath(playbookPath string) string {
	return filepath.Join(filepath.Dir(playbookPath), processedLogName)
}

// Store reads and writes playbook files.
type Store struct {
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the store's time source. Used by tests to pin
// corrupt-backup filenames.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store. A nil logger is replaced with a no-op logger.
func New(logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// defaultName labels a fresh playbook after its location: project
// playbooks take the repository directory name, everything else is
// "global".
func defaultName(path string) string {
	dir := filepath.Dir(path)
	if filepath.Base(dir) == projectDirName {
		return filepath.Base(filepath.Dir(dir))
	}
	return "global"
}

// Load reads the playbook at path. A missing file yields a fresh empty
// playbook. A corrupt or schema-invalid file is moved aside to
// <path>.corrupt-<unix-ts> and a fresh playbook is returned, so one bad
// write never wedges the pipeline.
func (s *Store) Load(path string) (*playbook.Playbook, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return playbook.NewPlaybook(defaultName(path))
	}
	if err != nil {
		return nil, fmt.Errorf("reading playbook %s: %w", path, err)
	}

	var pb playbook.Playbook
	if uerr := json.Unmarshal(data, &pb); uerr != nil {
		return s.resetCorrupt(path, fmt.Errorf("decoding playbook: %w", uerr))
	}
	if verr := pb.Validate(); verr != nil {
		return s.resetCorrupt(path, fmt.Errorf("validating playbook: %w", verr))
	}
	return &pb, nil
}

// resetCorrupt backs up the unreadable file and starts over.
func (s *Store) resetCorrupt(path string, cause error) (*playbook.Playbook, error) {
	backup := fmt.Sprintf("%s.corrupt-%d", path, s.now().Unix())
	if err := os.Rename(path, backup); err != nil {
		return nil, fmt.Errorf("backing up corrupt playbook %s: %w", path, err)
	}
	s.logger.Warn("corrupt playbook reset",
		zap.String("path", path),
		zap.String("backup", backup),
		zap.Error(cause))
	return playbook.NewPlaybook(defaultName(path))
}

// Save atomically writes the playbook to path, creating parent
// directories as needed. The content is fully written and fsynced to a
// temp file in the same directory before the rename, so readers never see
// a partial file.
func (s *Store) Save(path string, pb *playbook.Playbook) error {
	if err := pb.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid playbook: %w", err)
	}
	data, err := json.MarshalIndent(pb, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding playbook: %w", err)
	}
	return atomicWrite(path, data)
}

// atomicWrite writes data to path via a same-directory temp file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// ProcessedRecord is one line in the processed-session log.
type ProcessedRecord struct {
	SessionPath string    `json:"sessionPath"`
	ProcessedAt time.Time `json:"processedAt"`
	Deltas      int       `json:"deltas"`
}

// LoadProcessed reads the processed-session log into a set keyed by
// session path. A missing log means nothing has been processed.
func (s *Store) LoadProcessed(path string) (map[string]ProcessedRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]ProcessedRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening processed log %s: %w", path, err)
	}
	defer f.Close()

	seen := make(map[string]ProcessedRecord)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec ProcessedRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			// A torn trailing line from a crash is expected; skip it.
			s.logger.Debug("skipping malformed processed log line",
				zap.String("path", path), zap.Int("line", line))
			continue
		}
		seen[rec.SessionPath] = rec
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading processed log %s: %w", path, err)
	}
	return seen, nil
}

// AppendProcessed records that a session has been processed. The log is
// append-only; dedup happens at read time.
func (s *Store) AppendProcessed(path string, rec ProcessedRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for processed log: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding processed record: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening processed log %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending processed record: %w", err)
	}
	return nil
}
