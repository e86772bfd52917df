// Package reports runs completion-report exports asynchronously and stores
// the rendered artifacts in the attachment object store.
package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"collectcore/internal/attach"
	"collectcore/internal/core"
)

// Format identifies a report artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Status describes the lifecycle stage of a report request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Artifact captures one stored report rendering.
type Artifact struct {
	ID          string    `json:"id"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks a report request and its resulting artifacts.
type Record struct {
	ID          string     `json:"id"`
	RequestedBy string     `json:"requested_by"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Input is an enqueue request: whose scope to report on and which formats to
// render.
type Input struct {
	Principal core.Principal
	Formats   []Format
}

// Source produces completion reports; *core.Service satisfies it.
type Source interface {
	CompletionReport(ctx context.Context, principal core.Principal) (core.CompletionReport, error)
}

// Scheduler queues report requests and exposes their status.
type Scheduler interface {
	Enqueue(ctx context.Context, input Input) (Record, error)
	Get(id string) (Record, bool)
}

// Worker renders reports off the request path. One goroutine drains the
// queue; records are kept in memory and artifacts in the object store.
type Worker struct {
	source Source
	store  attach.Store
	audit  core.AuditRecorder
	log    *zap.Logger

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id    string
	input Input
}

// WorkerOption customizes worker construction.
type WorkerOption func(*Worker)

// WithAuditRecorder installs an audit sink for report lifecycle events.
func WithAuditRecorder(rec core.AuditRecorder) WorkerOption {
	return func(w *Worker) {
		if rec != nil {
			w.audit = rec
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(log *zap.Logger) WorkerOption {
	return func(w *Worker) {
		if log != nil {
			w.log = log
		}
	}
}

// NewWorker constructs a report worker writing artifacts to store.
func NewWorker(source Source, store attach.Store, opts ...WorkerOption) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		source: source,
		store:  store,
		log:    zap.NewNop(),
		queue:  make(chan task, 32),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins processing report requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Enqueue schedules a report job and returns the queued record.
func (w *Worker) Enqueue(ctx context.Context, input Input) (Record, error) {
	if w.source == nil {
		return Record{}, fmt.Errorf("report source not configured")
	}
	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	unique := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, f := range formats {
		if f != FormatJSON && f != FormatCSV {
			return Record{}, fmt.Errorf("unsupported report format %s", f)
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		unique = append(unique, f)
	}

	now := time.Now().UTC()
	record := Record{
		ID:          uuid.NewString(),
		RequestedBy: input.Principal.ID,
		Formats:     unique,
		Status:      StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[record.ID] = &record
	snapshot := record.copy()
	w.mu.Unlock()

	w.recordAudit(ctx, record.ID, StatusQueued, "")

	select {
	case w.queue <- task{id: record.ID, input: input}:
	default:
		w.fail(record.ID, "report queue full")
		return Record{}, fmt.Errorf("report queue full")
	}
	return snapshot, nil
}

// Get returns a snapshot of the report record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(t task) {
	w.setStatus(t.id, StatusRunning, "")

	report, err := w.source.CompletionReport(w.ctx, t.input.Principal)
	if err != nil {
		w.fail(t.id, fmt.Sprintf("completion report failed: %v", err))
		return
	}

	w.mu.RLock()
	formats := append([]Format(nil), w.jobs[t.id].Formats...)
	w.mu.RUnlock()

	artifacts := make([]Artifact, 0, len(formats))
	for _, format := range formats {
		payload, contentType, err := render(format, report)
		if err != nil {
			w.fail(t.id, err.Error())
			return
		}
		artifact := Artifact{
			ID:          uuid.NewString(),
			Format:      format,
			ContentType: contentType,
			SizeBytes:   int64(len(payload)),
			CreatedAt:   time.Now().UTC(),
		}
		if w.store != nil {
			key := fmt.Sprintf("reports/%s/%s.%s", t.id, artifact.ID, format)
			info, err := w.store.Put(w.ctx, key, bytes.NewReader(payload), attach.PutOptions{
				ContentType: contentType,
				Metadata:    map[string]string{"report_id": t.id, "format": string(format)},
			})
			if err != nil {
				w.fail(t.id, fmt.Sprintf("store artifact failed: %v", err))
				return
			}
			artifact.URL = info.URL
		}
		artifacts = append(artifacts, artifact)
	}
	w.complete(t.id, artifacts)
}

func (w *Worker) setStatus(id string, status Status, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, status, message)
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, StatusSucceeded, "")
	w.log.Debug("report completed", zap.String("report_id", id), zap.Int("artifacts", len(artifacts)))
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, StatusFailed, reason)
	w.log.Warn("report failed", zap.String("report_id", id), zap.String("reason", reason))
}

func (w *Worker) recordAudit(ctx context.Context, id string, status Status, message string) {
	if w.audit == nil {
		return
	}
	entry := core.AuditEntry{
		Operation: "completion_report_export",
		Actor:     w.actorFor(id),
		EntityID:  id,
		Status:    core.AuditStatusSuccess,
		At:        time.Now().UTC(),
	}
	if status == StatusFailed {
		entry.Status = core.AuditStatusError
		entry.Error = message
	}
	w.audit.Record(ctx, entry)
}

func (w *Worker) actorFor(id string) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if record, ok := w.jobs[id]; ok {
		return record.RequestedBy
	}
	return ""
}

func render(format Format, report core.CompletionReport) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		payload, err := json.Marshal(report)
		if err != nil {
			return nil, "", fmt.Errorf("marshal report: %w", err)
		}
		return payload, "application/json", nil
	case FormatCSV:
		return renderCSV(report)
	default:
		return nil, "", fmt.Errorf("unsupported report format %s", format)
	}
}

// renderCSV flattens the rollups into one row per node plus an overall row.
func renderCSV(report core.CompletionReport) ([]byte, string, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write([]string{"level", "node_id", "approved", "applicable", "rate_percent"}); err != nil {
		return nil, "", err
	}

	writeRow := func(level, nodeID string, count core.CompletionCount) error {
		return writer.Write([]string{
			level,
			nodeID,
			strconv.Itoa(count.Approved),
			strconv.Itoa(count.Applicable),
			strconv.Itoa(count.Rate()),
		})
	}

	if err := writeRow("overall", "", report.Overall); err != nil {
		return nil, "", err
	}
	for _, section := range []struct {
		level  string
		counts map[string]core.CompletionCount
	}{
		{"region", report.Regions},
		{"sector", report.Sectors},
		{"school", report.Schools},
		{"category", report.Categories},
	} {
		ids := make([]string, 0, len(section.counts))
		for id := range section.counts {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if err := writeRow(section.level, id, section.counts[id]); err != nil {
				return nil, "", err
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "text/csv", nil
}

func (r Record) copy() Record {
	dup := r
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), r.Artifacts...)
	}
	return dup
}
