package etl

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/lib/pq"

	"shelterstat/config"
	"shelterstat/logger"
	"shelterstat/metrics"
	"shelterstat/record"
)

// DefaultRecordsQuery pulls whole rows as JSON so new form fields need no
// code change.
const DefaultRecordsQuery = `SELECT row_to_json(t)::text FROM {{ident .Table}} t WHERE t.created_at > $1 ORDER BY t.created_at{{if .Limit}} LIMIT {{.Limit}}{{end}}`

// RecordStore is where ingested rows land.
type RecordStore interface {
	UpsertRecords(ctx context.Context, rows []record.Flat) (int, error)
	LatestCreatedAt(ctx context.Context) (time.Time, error)
}

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	Source   string        `json:"source"`
	Fetched  int           `json:"fetched"`
	Stored   int           `json:"stored"`
	Skipped  int           `json:"skipped"`
	Since    time.Time     `json:"since"`
	Duration time.Duration `json:"duration_ns"`
}

// DataIngestor handles data ingestion from source systems
type DataIngestor struct {
	config *config.Config
	repo   RecordStore
	// openSource is swapped in tests.
	openSource func(dsn string) (*sql.DB, error)
}

// NewDataIngestor creates a new data ingestor
func NewDataIngestor(cfg *config.Config, repo RecordStore) *DataIngestor {
	return &DataIngestor{
		config: cfg,
		repo:   repo,
		openSource: func(dsn string) (*sql.DB, error) {
			return sql.Open("postgres", dsn)
		},
	}
}

// Ingest copies records created after since into the record store. A zero
// since resumes from the newest stored visit.
func (d *DataIngestor) Ingest(ctx context.Context, since time.Time) (IngestStats, error) {
	start := time.Now()
	source := "postgres"
	if d.config.MockData.Enabled {
		source = "mock"
	}

	if since.IsZero() {
		last, err := d.repo.LatestCreatedAt(ctx)
		if err != nil {
			return IngestStats{Source: source}, err
		}
		since = last
	}

	var rows []record.Flat
	var skipped int
	var err error
	if d.config.MockData.Enabled {
		rows = NewMockDataGenerator(&d.config.MockData, time.Now()).Generate()
	} else {
		rows, skipped, err = d.fetchSource(ctx, since)
	}
	stats := IngestStats{Source: source, Fetched: len(rows), Skipped: skipped, Since: since}
	if err != nil {
		metrics.RecordIngest(source, 0, err)
		return stats, err
	}

	stored, err := d.repo.UpsertRecords(ctx, rows)
	stats.Stored = stored
	stats.Duration = time.Since(start)
	metrics.RecordIngest(source, stored, err)
	if err != nil {
		return stats, fmt.Errorf("failed to store records: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"source":  source,
		"fetched": stats.Fetched,
		"stored":  stored,
		"skipped": skipped,
		"elapsed": stats.Duration.Round(time.Millisecond),
	}).Info("Ingestion complete")
	return stats, nil
}

func (d *DataIngestor) fetchSource(ctx context.Context, since time.Time) ([]record.Flat, int, error) {
	queryTemplate := d.config.Queries.Records
	if strings.TrimSpace(queryTemplate) == "" {
		queryTemplate = DefaultRecordsQuery
	}
	query, err := executeTemplateQuery(queryTemplate, map[string]interface{}{
		"Table": d.config.SourceTable,
		"Limit": d.config.Analysis.MaxRecords,
	})
	if err != nil {
		return nil, 0, err
	}

	conn, err := d.openSource(d.config.SourceDSN())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open source database: %w", err)
	}
	defer conn.Close()

	if since.IsZero() {
		since = time.Unix(0, 0).UTC()
	}
	rs, err := conn.QueryContext(ctx, query, since)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query source: %w", err)
	}
	defer rs.Close()

	var out []record.Flat
	skipped := 0
	for rs.Next() {
		var raw []byte
		if err := rs.Scan(&raw); err != nil {
			return nil, skipped, fmt.Errorf("failed to scan source row: %w", err)
		}
		row, err := TransformRow(raw)
		if err != nil {
			skipped++
			logger.Debugf("Skipping source row: %v", err)
			continue
		}
		out = append(out, row)
	}
	return out, skipped, rs.Err()
}

// TransformRow decodes one row_to_json document into a Flat row. Keys are
// lower-cased and numbers keep their text form until the adapter reads them.
func TransformRow(raw []byte) (record.Flat, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("invalid row json: %w", err)
	}
	row := make(record.Flat, len(m))
	for k, v := range m {
		row[strings.ToLower(strings.TrimSpace(k))] = v
	}
	if row.Str(record.FieldID) == "" {
		return nil, fmt.Errorf("row without %s", record.FieldID)
	}
	return row, nil
}

// executeTemplateQuery executes a query template with parameters. Templates
// get an ident function that quotes identifiers for Postgres.
func executeTemplateQuery(queryTemplate string, params map[string]interface{}) (string, error) {
	tmpl, err := template.New("query").
		Funcs(template.FuncMap{"ident": pq.QuoteIdentifier}).
		Parse(queryTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse query template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("failed to execute query template: %w", err)
	}

	return buf.String(), nil
}
