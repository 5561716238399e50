package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/facts"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// SQLFactStore persists facts and links in a libsql database. Rows are never
// deleted: a retraction stamps retracted_at.
type SQLFactStore struct {
	db        *sql.DB
	batchSize int
	logger    zerolog.Logger
}

var _ FactStore = (*SQLFactStore)(nil)

// NewSQLFactStore opens dsn and makes sure the schema exists.
func NewSQLFactStore(dsn string, logger zerolog.Logger) (*SQLFactStore, error) {
	conn, err := ConnectToDB(dsn)
	if err != nil {
		return nil, err
	}

	store := &SQLFactStore{
		db:        conn,
		batchSize: 200,
		logger:    logger.With().Str("component", "factstore").Logger(),
	}
	if err := store.init(); err != nil {
		conn.Close()
		return nil, err
	}

	store.logger.Info().Str("dsn", dsn).Msg("Fact store opened")
	return store, nil
}

// init sets up the fact store tables.
func (s *SQLFactStore) init() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS facts (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			entity TEXT NOT NULL,
			attribute TEXT NOT NULL,
			value TEXT NOT NULL,
			value_kind TEXT NOT NULL,
			asserted_at TEXT NOT NULL,
			retracted_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_entity ON facts (entity)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_attribute_value ON facts (attribute, value)`,
		`CREATE TABLE IF NOT EXISTS links (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			src TEXT NOT NULL,
			relation TEXT NOT NULL,
			dst TEXT NOT NULL,
			asserted_at TEXT NOT NULL,
			retracted_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_links_src ON links (src)`,
		`CREATE INDEX IF NOT EXISTS idx_links_dst ON links (dst)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "failed to create fact store schema")
		}
	}
	return nil
}

// AddFacts appends all facts inside one transaction.
func (s *SQLFactStore) AddFacts(ctx context.Context, fs []facts.Fact) error {
	if len(fs) == 0 {
		return nil
	}

	batch, err := s.NewBatchContext(ctx, s.batchSize)
	if err != nil {
		return err
	}
	defer batch.Rollback()

	now := timestamp()
	query := "INSERT INTO facts (entity, attribute, value, value_kind, asserted_at) VALUES (?, ?, ?, ?, ?)"
	for _, f := range fs {
		value, kind, err := encodeValue(f.Value)
		if err != nil {
			return errors.Wrapf(err, "failed to encode %s of %s", f.Attribute, f.Entity)
		}
		batch.AddOperation(query, "insert", string(f.Entity), f.Attribute, value, kind, now)

		if err := batch.Flush(); err != nil {
			return err
		}
	}

	return batch.Commit()
}

// AddLinks appends all links inside one transaction.
func (s *SQLFactStore) AddLinks(ctx context.Context, ls []facts.Link) error {
	if len(ls) == 0 {
		return nil
	}

	batch, err := s.NewBatchContext(ctx, s.batchSize)
	if err != nil {
		return err
	}
	defer batch.Rollback()

	now := timestamp()
	query := "INSERT INTO links (src, relation, dst, asserted_at) VALUES (?, ?, ?, ?)"
	for _, l := range ls {
		batch.AddOperation(query, "insert", string(l.From), l.Relation, string(l.To), now)

		if err := batch.Flush(); err != nil {
			return err
		}
	}

	return batch.Commit()
}

func (s *SQLFactStore) RetractFacts(ctx context.Context, entity facts.EntityID, attributes ...string) error {
	query := "UPDATE facts SET retracted_at = ? WHERE entity = ? AND retracted_at IS NULL"
	args := []any{timestamp(), string(entity)}
	if len(attributes) > 0 {
		query += " AND attribute IN (" + placeholders(len(attributes)) + ")"
		for _, a := range attributes {
			args = append(args, a)
		}
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "failed to retract facts of %s", entity)
	}
	return nil
}

func (s *SQLFactStore) RetractLinks(ctx context.Context, ls ...facts.Link) error {
	if len(ls) == 0 {
		return nil
	}

	batch, err := s.NewBatchContext(ctx, s.batchSize)
	if err != nil {
		return err
	}
	defer batch.Rollback()

	now := timestamp()
	query := "UPDATE links SET retracted_at = ? WHERE src = ? AND relation = ? AND dst = ? AND retracted_at IS NULL"
	for _, l := range ls {
		batch.AddOperation(query, "update", now, string(l.From), l.Relation, string(l.To))
		if err := batch.Flush(); err != nil {
			return err
		}
	}

	return batch.Commit()
}

func (s *SQLFactStore) RetractLinksTouching(ctx context.Context, entity facts.EntityID) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE links SET retracted_at = ? WHERE (src = ? OR dst = ?) AND retracted_at IS NULL",
		timestamp(), string(entity), string(entity))
	if err != nil {
		return errors.Wrapf(err, "failed to retract links of %s", entity)
	}
	return nil
}

func (s *SQLFactStore) FactsByEntity(ctx context.Context, entity facts.EntityID) ([]facts.Fact, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT entity, attribute, value, value_kind FROM facts WHERE entity = ? AND retracted_at IS NULL ORDER BY seq",
		string(entity))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query facts of %s", entity)
	}
	defer rows.Close()

	var out []facts.Fact
	for rows.Next() {
		var f facts.Fact
		var ent, value, kind string
		if err := rows.Scan(&ent, &f.Attribute, &value, &kind); err != nil {
			return nil, errors.Wrap(err, "failed to scan fact")
		}
		f.Entity = facts.EntityID(ent)
		if f.Value, err = decodeValue(value, kind); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, errors.Wrap(rows.Err(), "fact iteration error")
}

func (s *SQLFactStore) EntitiesByAttribute(ctx context.Context, attribute string, value any) ([]facts.EntityID, error) {
	encoded, _, err := encodeValue(value)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT entity FROM facts WHERE attribute = ? AND value = ? AND retracted_at IS NULL ORDER BY entity",
		attribute, encoded)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query entities by %s", attribute)
	}
	defer rows.Close()

	var out []facts.EntityID
	for rows.Next() {
		var ent string
		if err := rows.Scan(&ent); err != nil {
			return nil, errors.Wrap(err, "failed to scan entity")
		}
		out = append(out, facts.EntityID(ent))
	}
	return out, errors.Wrap(rows.Err(), "entity iteration error")
}

func (s *SQLFactStore) ValuesByAttribute(ctx context.Context, attribute string) ([]any, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT value, value_kind FROM facts WHERE attribute = ? AND retracted_at IS NULL",
		attribute)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query values of %s", attribute)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var value, kind string
		if err := rows.Scan(&value, &kind); err != nil {
			return nil, errors.Wrap(err, "failed to scan value")
		}
		v, err := decodeValue(value, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, errors.Wrap(rows.Err(), "value iteration error")
}

func (s *SQLFactStore) LinksFrom(ctx context.Context, entity facts.EntityID) ([]facts.Link, error) {
	return s.queryLinks(ctx, "src", entity)
}

func (s *SQLFactStore) LinksTo(ctx context.Context, entity facts.EntityID) ([]facts.Link, error) {
	return s.queryLinks(ctx, "dst", entity)
}

func (s *SQLFactStore) queryLinks(ctx context.Context, column string, entity facts.EntityID) ([]facts.Link, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT src, relation, dst FROM links WHERE "+column+" = ? AND retracted_at IS NULL ORDER BY seq",
		string(entity))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query links of %s", entity)
	}
	defer rows.Close()

	var out []facts.Link
	for rows.Next() {
		var src, rel, dst string
		if err := rows.Scan(&src, &rel, &dst); err != nil {
			return nil, errors.Wrap(err, "failed to scan link")
		}
		out = append(out, facts.Link{From: facts.EntityID(src), Relation: rel, To: facts.EntityID(dst)})
	}
	return out, errors.Wrap(rows.Err(), "link iteration error")
}

func (s *SQLFactStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM facts WHERE retracted_at IS NULL),
		(SELECT COUNT(*) FROM facts WHERE retracted_at IS NOT NULL),
		(SELECT COUNT(*) FROM links WHERE retracted_at IS NULL),
		(SELECT COUNT(*) FROM links WHERE retracted_at IS NOT NULL),
		(SELECT COUNT(DISTINCT entity) FROM facts WHERE retracted_at IS NULL)`)
	if err := row.Scan(&st.Facts, &st.RetractedFacts, &st.Links, &st.RetractedLinks, &st.Entities); err != nil {
		return Stats{}, errors.Wrap(err, "failed to read fact store stats")
	}
	return st, nil
}

// Close closes the database connection.
func (s *SQLFactStore) Close() error {
	return s.db.Close()
}

// Batch operations for bulk fact appends

// BatchOperation represents a single database operation
type BatchOperation struct {
	Query string
	Args  []any
	Type  string // "insert", "update"
}

// BatchContext holds state for batch processing inside one transaction
type BatchContext struct {
	operations []BatchOperation
	tx         *sql.Tx
	ctx        context.Context
	batchSize  int
	committed  int
	done       bool
	logger     zerolog.Logger
}

// NewBatchContext begins a transaction for batch processing
func (s *SQLFactStore) NewBatchContext(ctx context.Context, batchSize int) (*BatchContext, error) {
	if batchSize <= 0 {
		batchSize = 100 // Default batch size
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}

	return &BatchContext{
		operations: make([]BatchOperation, 0, batchSize),
		tx:         tx,
		ctx:        ctx,
		batchSize:  batchSize,
		logger:     s.logger,
	}, nil
}

// AddOperation adds an operation to the batch
func (bc *BatchContext) AddOperation(query string, opType string, args ...any) {
	bc.operations = append(bc.operations, BatchOperation{
		Query: query,
		Args:  args,
		Type:  opType,
	})
}

// ExecuteBatch executes all operations queued so far
func (bc *BatchContext) ExecuteBatch() error {
	if len(bc.operations) == 0 {
		return nil
	}

	start := time.Now()
	for _, op := range bc.operations {
		if _, err := bc.tx.ExecContext(bc.ctx, op.Query, op.Args...); err != nil {
			bc.logger.Error().Err(err).Str("type", op.Type).Msg("Batch operation failed")
			return errors.Wrap(err, "batch operation failed")
		}
	}

	executed := len(bc.operations)
	bc.committed += executed
	bc.operations = bc.operations[:0] // Clear the slice but keep capacity

	bc.logger.Debug().
		Int("operations", executed).
		Dur("duration", time.Since(start)).
		Msg("Batch executed")
	return nil
}

// ShouldFlush returns true if the batch should be executed
func (bc *BatchContext) ShouldFlush() bool {
	return len(bc.operations) >= bc.batchSize
}

// Flush executes the batch if it is full
func (bc *BatchContext) Flush() error {
	if bc.ShouldFlush() {
		return bc.ExecuteBatch()
	}
	return nil
}

// Commit executes the remaining operations and commits the transaction
func (bc *BatchContext) Commit() error {
	if err := bc.ExecuteBatch(); err != nil {
		bc.Rollback()
		return err
	}

	if err := bc.tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	bc.done = true

	bc.logger.Debug().Int("total_operations", bc.committed).Msg("Batch operations committed")
	return nil
}

// Rollback cancels the transaction. It is a no-op after Commit.
func (bc *BatchContext) Rollback() error {
	if bc.done {
		return nil
	}
	bc.done = true
	return bc.tx.Rollback()
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// encodeValue renders a fact value as text plus a kind tag so it can be read
// back with its Go type.
func encodeValue(v any) (string, string, error) {
	switch val := v.(type) {
	case string:
		return val, "string", nil
	case bool:
		return strconv.FormatBool(val), "bool", nil
	case int:
		return strconv.FormatInt(int64(val), 10), "int", nil
	case int64:
		return strconv.FormatInt(val, 10), "int", nil
	case uint64:
		return strconv.FormatUint(val, 10), "int", nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), "float", nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), "string", nil
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "", "", errors.Wrapf(err, "unsupported fact value %T", v)
		}
		return string(data), "json", nil
	}
}

func decodeValue(value, kind string) (any, error) {
	switch kind {
	case "string":
		return value, nil
	case "bool":
		return strconv.ParseBool(value)
	case "int":
		return strconv.ParseInt(value, 10, 64)
	case "float":
		return strconv.ParseFloat(value, 64)
	case "json":
		var out any
		if err := json.Unmarshal([]byte(value), &out); err != nil {
			return nil, errors.Wrap(err, "failed to decode json fact value")
		}
		return out, nil
	default:
		return nil, errors.Newf("unknown fact value kind %q", kind)
	}
}
