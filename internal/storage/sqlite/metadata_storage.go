package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/stash/internal/interfaces"
	"github.com/ternarybob/stash/internal/models"
)

const blobColumns = "id, key, namespace, filename, path, content_type, operation_type, backup_type, encoding, context, status, error"

// filterColumns whitelists the columns Select and Delete may filter on.
var filterColumns = map[string]bool{
	"id":             true,
	"key":            true,
	"namespace":      true,
	"path":           true,
	"operation_type": true,
	"status":         true,
}

// MetadataStorage persists JobMetadata rows in the blobs table. Every
// call runs in its own transaction and is retried up to the configured
// retry count, rolling back between attempts.
type MetadataStorage struct {
	conn    *DB
	logger  arbor.ILogger
	retries int
}

// NewMetadataStorage creates the store. retries must be at least 1.
func NewMetadataStorage(conn *DB, logger arbor.ILogger, retries int) *MetadataStorage {
	if retries < 1 {
		retries = 1
	}
	return &MetadataStorage{
		conn:    conn,
		logger:  logger,
		retries: retries,
	}
}

// Init creates the blobs table if it does not exist.
func (m *MetadataStorage) Init(ctx context.Context) interfaces.TransactionResult {
	err := m.withRetries(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, createBlobsTable)
		return err
	})
	if err != nil {
		return interfaces.TransactionResult{
			Message: "Failed to initialize blobs table.",
			Err:     err,
		}
	}
	return interfaces.TransactionResult{Message: "Blobs table ready."}
}

// Select returns the rows matching all filters. An empty filter map
// returns every row.
func (m *MetadataStorage) Select(ctx context.Context, filters map[string]interface{}) interfaces.TransactionResult {
	where, args, err := buildWhere(filters)
	if err != nil {
		return interfaces.TransactionResult{Message: "Invalid filter.", Err: err}
	}

	var rows []*models.JobMetadata
	err = m.withRetries(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf("SELECT %s FROM blobs%s", blobColumns, where)
		result, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer result.Close()

		rows = rows[:0]
		for result.Next() {
			row, err := scanJobMetadata(result)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return result.Err()
	})
	if err != nil {
		return interfaces.TransactionResult{Message: "Select failed.", Err: err}
	}
	return interfaces.TransactionResult{
		Message: fmt.Sprintf("Selected %d rows.", len(rows)),
		Data:    rows,
	}
}

// Insert adds new rows. Inserting a path that already exists fails on
// the UNIQUE constraint.
func (m *MetadataStorage) Insert(ctx context.Context, rows []*models.JobMetadata) interfaces.TransactionResult {
	err := m.withRetries(ctx, func(tx *sql.Tx) error {
		for _, row := range rows {
			_, err := tx.ExecContext(ctx,
				fmt.Sprintf("INSERT INTO blobs (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", blobColumns),
				rowArgs(row)...)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return interfaces.TransactionResult{Message: "Insert failed.", Err: err}
	}
	return interfaces.TransactionResult{
		Message: fmt.Sprintf("Inserted %d rows.", len(rows)),
		Data:    rows,
	}
}

// Update rewrites existing rows, matched by id.
func (m *MetadataStorage) Update(ctx context.Context, rows []*models.JobMetadata) interfaces.TransactionResult {
	err := m.withRetries(ctx, func(tx *sql.Tx) error {
		for _, row := range rows {
			_, err := tx.ExecContext(ctx,
				`UPDATE blobs SET key = ?, namespace = ?, filename = ?, path = ?, content_type = ?,
					operation_type = ?, backup_type = ?, encoding = ?, context = ?, status = ?, error = ?
				 WHERE id = ?`,
				row.Key, row.Namespace, row.Filename, row.Path, row.ContentType,
				string(row.OperationType), string(row.BackupType), row.Encoding,
				row.Context, string(row.Status), row.Error, row.ID.String())
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return interfaces.TransactionResult{Message: "Update failed.", Err: err}
	}
	return interfaces.TransactionResult{
		Message: fmt.Sprintf("Updated %d rows.", len(rows)),
		Data:    rows,
	}
}

// UpsertByPath inserts each row, replacing any existing row for the
// same path. This is the write every job transition goes through.
func (m *MetadataStorage) UpsertByPath(ctx context.Context, rows []*models.JobMetadata) interfaces.TransactionResult {
	err := m.withRetries(ctx, func(tx *sql.Tx) error {
		for _, row := range rows {
			_, err := tx.ExecContext(ctx,
				fmt.Sprintf(`INSERT INTO blobs (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT(path) DO UPDATE SET
					id = excluded.id,
					key = excluded.key,
					namespace = excluded.namespace,
					filename = excluded.filename,
					content_type = excluded.content_type,
					operation_type = excluded.operation_type,
					backup_type = excluded.backup_type,
					encoding = excluded.encoding,
					context = excluded.context,
					status = excluded.status,
					error = excluded.error`, blobColumns),
				rowArgs(row)...)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return interfaces.TransactionResult{Message: "Upsert failed.", Err: err}
	}
	return interfaces.TransactionResult{
		Message: fmt.Sprintf("Upserted %d rows.", len(rows)),
		Data:    rows,
	}
}

// Delete removes the rows matching all filters.
func (m *MetadataStorage) Delete(ctx context.Context, filters map[string]interface{}) interfaces.TransactionResult {
	where, args, err := buildWhere(filters)
	if err != nil {
		return interfaces.TransactionResult{Message: "Invalid filter.", Err: err}
	}

	var deleted int64
	err = m.withRetries(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM blobs"+where, args...)
		if err != nil {
			return err
		}
		deleted, _ = result.RowsAffected()
		return nil
	})
	if err != nil {
		return interfaces.TransactionResult{Message: "Delete failed.", Err: err}
	}
	return interfaces.TransactionResult{
		Message: fmt.Sprintf("Deleted %d rows.", deleted),
	}
}

// Drop removes the blobs table entirely.
func (m *MetadataStorage) Drop(ctx context.Context) interfaces.TransactionResult {
	err := m.withRetries(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS blobs")
		return err
	})
	if err != nil {
		return interfaces.TransactionResult{Message: "Drop failed.", Err: err}
	}
	return interfaces.TransactionResult{Message: "Blobs table dropped."}
}

// Close is a no-op; the shared connection is owned by the manager.
func (m *MetadataStorage) Close() error {
	return nil
}

// withRetries runs fn in a transaction, retrying on failure with a
// rollback between attempts.
func (m *MetadataStorage) withRetries(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= m.retries; attempt++ {
		tx, err := m.conn.BeginTx(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		if err := fn(tx); err != nil {
			tx.Rollback()
			lastErr = err
			m.logger.Warn().
				Int("attempt", attempt).
				Int("retries", m.retries).
				Err(err).
				Msg("Metadata transaction failed")
			continue
		}

		if err := tx.Commit(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", m.retries, lastErr)
}

func rowArgs(row *models.JobMetadata) []interface{} {
	return []interface{}{
		row.ID.String(), row.Key, row.Namespace, row.Filename, row.Path,
		row.ContentType, string(row.OperationType), string(row.BackupType),
		row.Encoding, row.Context, string(row.Status), row.Error,
	}
}

func scanJobMetadata(rows *sql.Rows) (*models.JobMetadata, error) {
	var (
		row                    models.JobMetadata
		id, op, backup, status string
	)
	err := rows.Scan(&id, &row.Key, &row.Namespace, &row.Filename, &row.Path,
		&row.ContentType, &op, &backup, &row.Encoding, &row.Context, &status, &row.Error)
	if err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", id, err)
	}
	row.ID = parsed
	row.OperationType = models.OperationType(op)
	row.BackupType = models.BackupType(backup)
	row.Status = models.JobStatus(status)
	return &row, nil
}

func buildWhere(filters map[string]interface{}) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(filters))
	for key := range filters {
		if !filterColumns[key] {
			return "", nil, fmt.Errorf("unsupported filter column %q", key)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))
	for _, key := range keys {
		clauses = append(clauses, key+" = ?")
		args = append(args, fmt.Sprintf("%v", filters[key]))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}
