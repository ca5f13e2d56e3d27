// Package pipeline orchestrates the staged flow: capture raw payloads,
// decode them into flat snapshots, run the quality gate, and load the
// warehouse. Stages communicate only through staged blobs, so each one
// can also run standalone against the latest upstream artifact.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/andre-dussing/european-public-data-pipeline/blobstore"
	"github.com/andre-dussing/european-public-data-pipeline/capture"
	"github.com/andre-dussing/european-public-data-pipeline/config"
	"github.com/andre-dussing/european-public-data-pipeline/jsonstat"
	"github.com/andre-dussing/european-public-data-pipeline/metrics"
	"github.com/andre-dussing/european-public-data-pipeline/quality"
	"github.com/andre-dussing/european-public-data-pipeline/warehouse"
)

// RawSource acquires one raw payload and returns its staged blob path
type RawSource interface {
	Capture(ctx context.Context) (string, error)
}

// FactSink applies validated snapshots to the warehouse
type FactSink interface {
	EnsureSchema(ctx context.Context) error
	Load(ctx context.Context, rows []warehouse.Row) error
}

// QualityGateError reports a blocked load: the latest snapshot failed
// the quality gate and the fact table was left untouched.
type QualityGateError struct {
	ReportPath string
	Failed     []string
}

func (e *QualityGateError) Error() string {
	return fmt.Sprintf("quality gate failed (%s), load blocked, report at %s",
		strings.Join(e.Failed, ", "), e.ReportPath)
}

// Snapshot is the decoded (silver) artifact staged between the decode
// and load stages
type Snapshot struct {
	Meta struct {
		Dataset       string   `json:"dataset"`
		SourceBlob    string   `json:"source_blob"`
		PipelineStage string   `json:"pipeline_stage"`
		ProcessedAt   string   `json:"processed_at_utc"`
		Rows          int      `json:"rows"`
		Columns       []string `json:"columns"`
	} `json:"meta"`
	Data []jsonstat.Observation `json:"data"`
}

// latestPointer is the small LATEST.json object that names the current
// quality report for the standalone load stage
type latestPointer struct {
	ReportPath string `json:"report_path"`
	Snapshot   string `json:"snapshot_path"`
	Passed     bool   `json:"passed"`
	CheckedAt  string `json:"checked_at_utc"`
}

// Runner wires the stages together
type Runner struct {
	cfg     *config.Config
	store   blobstore.Store
	source  RawSource
	sink    FactSink
	metrics *metrics.Metrics
	logger  *zap.Logger
	stats   *Stats
}

func NewRunner(cfg *config.Config, store blobstore.Store, source RawSource, sink FactSink, m *metrics.Metrics, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		store:   store,
		source:  source,
		sink:    sink,
		metrics: m,
		logger:  logger,
		stats:   NewStats(),
	}
}

// Stats exposes run counters to the health server
func (r *Runner) Stats() *Stats {
	return r.stats
}

// Capture runs the acquisition stage
func (r *Runner) Capture(ctx context.Context) (string, error) {
	start := time.Now()
	path, err := r.source.Capture(ctx)
	r.metrics.ObserveStage("capture", start, err)
	r.stats.RecordStage("capture", err)
	return path, err
}

// Decode runs the decode stage over the given raw blob, or the latest
// one when rawPath is empty. Returns the staged snapshot path.
func (r *Runner) Decode(ctx context.Context, rawPath string) (string, error) {
	start := time.Now()
	path, err := r.decode(ctx, rawPath)
	r.metrics.ObserveStage("decode", start, err)
	r.stats.RecordStage("decode", err)
	return path, err
}

func (r *Runner) decode(ctx context.Context, rawPath string) (string, error) {
	if rawPath == "" {
		latest, err := blobstore.Latest(ctx, r.store, r.cfg.RawPrefix())
		if err != nil {
			return "", fmt.Errorf("no raw blob to decode: %w", err)
		}
		rawPath = latest.Path
	}

	blob, err := r.store.Download(ctx, rawPath)
	if err != nil {
		return "", err
	}

	var envelope capture.Envelope
	if err := json.Unmarshal(blob, &envelope); err != nil {
		return "", fmt.Errorf("raw blob %s is not a capture envelope: %w", rawPath, err)
	}

	payload, err := jsonstat.Parse(envelope.Data)
	if err != nil {
		return "", err
	}

	processedAt := time.Now().UTC()
	rows, err := jsonstat.NewDecoder(payload, rawPath, processedAt).Decode()
	if err != nil {
		return "", err
	}
	r.metrics.RowsDecoded.Add(float64(len(rows)))

	snapshot := Snapshot{Data: rows}
	snapshot.Meta.Dataset = envelope.Meta.Dataset
	snapshot.Meta.SourceBlob = rawPath
	snapshot.Meta.PipelineStage = "processed"
	snapshot.Meta.ProcessedAt = processedAt.Format(time.RFC3339)
	snapshot.Meta.Rows = len(rows)
	snapshot.Meta.Columns = jsonstat.Columns

	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	path := r.cfg.ProcessedPrefix() + "ts=" + processedAt.Format("20060102_150405") + ".json"
	if err := r.store.Upload(ctx, path, data, "application/json"); err != nil {
		return "", fmt.Errorf("failed to stage snapshot: %w", err)
	}

	r.logger.Info("Decoded snapshot staged",
		zap.String("raw", rawPath),
		zap.String("snapshot", path),
		zap.Int("rows", len(rows)))
	return path, nil
}

// Validate runs the quality gate over the given snapshot, or the
// latest one when snapshotPath is empty. The full report is always
// persisted, pass or fail.
func (r *Runner) Validate(ctx context.Context, snapshotPath string) (quality.Report, string, error) {
	start := time.Now()
	report, path, err := r.validate(ctx, snapshotPath)
	r.metrics.ObserveStage("validate", start, err)
	r.stats.RecordStage("validate", err)
	return report, path, err
}

func (r *Runner) validate(ctx context.Context, snapshotPath string) (quality.Report, string, error) {
	snapshot, snapshotPath, err := r.loadSnapshot(ctx, snapshotPath)
	if err != nil {
		return quality.Report{}, "", err
	}

	report := quality.RunChecks(snapshot.Data, snapshot.Meta.Columns)
	for _, check := range report.Checks {
		if !check.Passed {
			r.metrics.ChecksFailed.WithLabelValues(check.CheckName).Inc()
			r.logger.Warn("Quality check failed",
				zap.String("check", check.CheckName),
				zap.String("details", check.Details))
		}
	}

	verdict := "PASS"
	if !report.Passed {
		verdict = "FAIL"
	}
	reportPath := fmt.Sprintf("%sts=%s_%s.json",
		r.cfg.QualityPrefix(), report.CheckedAt.Format("20060102_150405"), verdict)

	reportBlob, err := json.Marshal(report)
	if err != nil {
		return quality.Report{}, "", fmt.Errorf("failed to marshal quality report: %w", err)
	}
	if err := r.store.Upload(ctx, reportPath, reportBlob, "application/json"); err != nil {
		return quality.Report{}, "", fmt.Errorf("failed to stage quality report: %w", err)
	}

	pointer := latestPointer{
		ReportPath: reportPath,
		Snapshot:   snapshotPath,
		Passed:     report.Passed,
		CheckedAt:  report.CheckedAt.Format(time.RFC3339),
	}
	pointerBlob, err := json.Marshal(pointer)
	if err != nil {
		return quality.Report{}, "", fmt.Errorf("failed to marshal quality pointer: %w", err)
	}
	if err := r.store.Upload(ctx, r.cfg.QualityPrefix()+"LATEST.json", pointerBlob, "application/json"); err != nil {
		return quality.Report{}, "", fmt.Errorf("failed to stage quality pointer: %w", err)
	}

	r.logger.Info("Quality gate evaluated",
		zap.String("snapshot", snapshotPath),
		zap.String("report", reportPath),
		zap.Bool("passed", report.Passed),
		zap.Int("rows", report.Summary.Rows))
	return report, reportPath, nil
}

// Load runs the warehouse stage standalone: it resolves the latest
// quality verdict and refuses to load unless the gate passed.
func (r *Runner) Load(ctx context.Context) error {
	start := time.Now()
	err := r.load(ctx)
	r.metrics.ObserveStage("load", start, err)
	r.stats.RecordStage("load", err)
	return err
}

func (r *Runner) load(ctx context.Context) error {
	pointerBlob, err := r.store.Download(ctx, r.cfg.QualityPrefix()+"LATEST.json")
	if err != nil {
		return fmt.Errorf("no quality verdict found, run validate first: %w", err)
	}
	var pointer latestPointer
	if err := json.Unmarshal(pointerBlob, &pointer); err != nil {
		return fmt.Errorf("corrupt quality pointer: %w", err)
	}

	if !pointer.Passed {
		report, err := r.readReport(ctx, pointer.ReportPath)
		if err != nil {
			return err
		}
		return &QualityGateError{ReportPath: pointer.ReportPath, Failed: failedChecks(report)}
	}

	snapshot, _, err := r.loadSnapshot(ctx, pointer.Snapshot)
	if err != nil {
		return err
	}
	return r.loadRows(ctx, snapshot.Data)
}

// Run executes the full flow. The warehouse sink is never invoked when
// the gate fails.
func (r *Runner) Run(ctx context.Context) error {
	rawPath, err := r.Capture(ctx)
	if err != nil {
		return err
	}

	snapshotPath, err := r.Decode(ctx, rawPath)
	if err != nil {
		return err
	}

	report, reportPath, err := r.Validate(ctx, snapshotPath)
	if err != nil {
		return err
	}
	if !report.Passed {
		err := &QualityGateError{ReportPath: reportPath, Failed: failedChecks(report)}
		r.stats.RecordStage("load", err)
		return err
	}

	snapshot, _, err := r.loadSnapshot(ctx, snapshotPath)
	if err != nil {
		return err
	}

	start := time.Now()
	err = r.loadRows(ctx, snapshot.Data)
	r.metrics.ObserveStage("load", start, err)
	r.stats.RecordStage("load", err)
	return err
}

func (r *Runner) loadRows(ctx context.Context, rows []jsonstat.Observation) error {
	if err := r.sink.EnsureSchema(ctx); err != nil {
		return err
	}

	facts := make([]warehouse.Row, 0, len(rows))
	for _, obs := range rows {
		facts = append(facts, warehouse.Row{
			Time:        obs.Time.Format("2006-01-02"),
			Geo:         obs.Geo,
			Coicop:      obs.Coicop,
			Unit:        obs.Unit,
			Value:       obs.Value,
			ProcessedAt: obs.ProcessedAt.Format(time.RFC3339),
			RawBlob:     obs.RawBlob,
		})
	}

	if err := r.sink.Load(ctx, facts); err != nil {
		return err
	}
	r.metrics.RowsLoaded.Add(float64(len(facts)))
	r.stats.RecordRowsLoaded(len(facts))
	return nil
}

func (r *Runner) loadSnapshot(ctx context.Context, path string) (Snapshot, string, error) {
	if path == "" {
		latest, err := blobstore.Latest(ctx, r.store, r.cfg.ProcessedPrefix())
		if err != nil {
			return Snapshot{}, "", fmt.Errorf("no snapshot to read: %w", err)
		}
		path = latest.Path
	}

	blob, err := r.store.Download(ctx, path)
	if err != nil {
		return Snapshot{}, "", err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(blob, &snapshot); err != nil {
		return Snapshot{}, "", fmt.Errorf("corrupt snapshot %s: %w", path, err)
	}
	return snapshot, path, nil
}

func (r *Runner) readReport(ctx context.Context, path string) (quality.Report, error) {
	blob, err := r.store.Download(ctx, path)
	if err != nil {
		return quality.Report{}, fmt.Errorf("failed to read quality report %s: %w", path, err)
	}
	var report quality.Report
	if err := json.Unmarshal(blob, &report); err != nil {
		return quality.Report{}, fmt.Errorf("corrupt quality report %s: %w", path, err)
	}
	return report, nil
}

func failedChecks(report quality.Report) []string {
	var names []string
	for _, check := range report.Checks {
		if !check.Passed {
			names = append(names, check.CheckName)
		}
	}
	return names
}
