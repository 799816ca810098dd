package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/stimalign/internal/model"
)

// SessionProcessor runs one session end to end
type SessionProcessor interface {
	Run(ctx context.Context, session model.Session) (*model.Report, error)
}

// SessionJob represents one session to process
type SessionJob struct {
	Session   model.Session
	Processor SessionProcessor
	Limiter   *Limiter // Optional
}

// Execute executes the session job
func (j *SessionJob) Execute(ctx context.Context) Result {
	start := time.Now()
	result := &SessionResult{Session: j.Session}

	if j.Limiter != nil && !j.Limiter.Allow(j.Session.LogPath) {
		slog.Debug("waiting for load slot", "session", j.Session.ID, "root", dataRoot(j.Session.LogPath))
		if err := j.Limiter.Wait(ctx, j.Session.LogPath); err != nil {
			result.Error = fmt.Errorf("wait for load slot: %w", err)
			return result
		}
	}

	result.Report, result.Error = j.Processor.Run(ctx, j.Session)
	result.Duration = time.Since(start)
	return result
}

// SessionResult represents the result of a session job
type SessionResult struct {
	Session  model.Session
	Report   *model.Report
	Error    error
	Duration time.Duration
}

// GetError returns the error from the session result
func (r *SessionResult) GetError() error {
	return r.Error
}

// BatchProcessor processes multiple sessions concurrently. A failing session
// never affects the others.
type BatchProcessor struct {
	processor   SessionProcessor
	concurrency int
	burst       int
	limiter     *Limiter
}

// NewBatchProcessor creates a new batch processor; loadsPerSecond <= 0
// disables pacing
func NewBatchProcessor(processor SessionProcessor, concurrency int, loadsPerSecond float64, burst int) *BatchProcessor {
	var limiter *Limiter
	if loadsPerSecond > 0 {
		limiter = NewLimiter(loadsPerSecond, burst)
	}
	return &BatchProcessor{
		processor:   processor,
		concurrency: concurrency,
		burst:       burst,
		limiter:     limiter,
	}
}

// SetRootRates paces loads from individual data roots (directories holding
// session logs), overriding the default rate for those roots
func (b *BatchProcessor) SetRootRates(rates map[string]float64) {
	if len(rates) == 0 {
		return
	}
	if b.limiter == nil {
		b.limiter = NewLimiter(0, b.burst)
	}
	for root, loadsPerSecond := range rates {
		b.limiter.SetRootRate(root, loadsPerSecond, b.burst)
	}
}

// ProcessSessions processes sessions concurrently and returns exactly one
// result per session, ordered by session ID. Sessions the pool never ran
// because ctx ended carry the context error.
func (b *BatchProcessor) ProcessSessions(ctx context.Context, sessions []model.Session) []*SessionResult {
	if len(sessions) == 0 {
		return []*SessionResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, s := range sessions {
		pool.Submit(&SessionJob{
			Session:   s,
			Processor: b.processor,
			Limiter:   b.limiter,
		})
	}

	results := pool.Wait()

	sessionResults := make([]*SessionResult, 0, len(sessions))
	done := make(map[string]bool, len(results))
	for _, r := range results {
		sr := r.(*SessionResult)
		done[sr.Session.ID] = true
		sessionResults = append(sessionResults, sr)
	}

	for _, s := range sessions {
		if done[s.ID] {
			continue
		}
		cause := ctx.Err()
		if cause == nil {
			cause = errors.New("pool stopped")
		}
		sessionResults = append(sessionResults, &SessionResult{
			Session: s,
			Error:   fmt.Errorf("session not processed: %w", cause),
		})
	}
	sort.Slice(sessionResults, func(i, j int) bool {
		return sessionResults[i].Session.ID < sessionResults[j].Session.ID
	})

	return sessionResults
}

// DiscoverSessions lists the session logs in dir whose names match pattern.
// The first capture group of pattern is the session ID (the whole match
// without one). Sessions in skip are left out. A sibling file named
// <session><triggerSuffix> becomes the session's trigger stream.
func DiscoverSessions(dir, pattern string, skip []string, triggerSuffix string) ([]model.Session, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("session pattern: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read session dir: %w", err)
	}

	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}

	sessions := []model.Session{}
	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		m := re.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		id := m[0]
		if len(m) > 1 && m[1] != "" {
			id = m[1]
		}

		if skipped[id] {
			slog.Info("skipping session", "session", id)
			continue
		}
		if seen[id] {
			return nil, fmt.Errorf("session %s matched more than one log", id)
		}
		seen[id] = true

		session := model.Session{
			ID:      id,
			LogPath: filepath.Join(dir, entry.Name()),
		}
		if triggerSuffix != "" {
			triggers := filepath.Join(dir, id+triggerSuffix)
			if info, err := os.Stat(triggers); err == nil && !info.IsDir() {
				session.TriggersPath = triggers
			}
		}
		sessions = append(sessions, session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ID < sessions[j].ID
	})
	return sessions, nil
}

// ReadSkipFile reads session IDs to skip from a file (one per line)
func ReadSkipFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var ids []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			ids = append(ids, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return ids, nil
}
