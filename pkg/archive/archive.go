// Package archive persists serialized steward snapshots in PostgreSQL.
// The kernel itself never depends on it: a snapshot is serialized with
// Snapshot.SerializeInto and the resulting bytes are archived here, keyed
// by simulation id and base time, for later DeserializeFrom.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.jetify.com/typeid"
)

// Entry is one archived snapshot.
type Entry struct {
	ID           string
	SimulationID string
	BaseTime     int64
	Payload      []byte
	CreatedAt    time.Time
}

// SnapshotArchive stores and retrieves serialized snapshots.
type SnapshotArchive interface {
	// Save archives a snapshot payload. Saving the same simulation and
	// base time again replaces the payload.
	Save(ctx context.Context, simulationID string, baseTime int64, payload []byte) (Entry, error)

	// LoadLatest returns the most recent snapshot at or before the given
	// base time. Fails with NotFoundError when none exists.
	LoadLatest(ctx context.Context, simulationID string, atOrBefore int64) (Entry, error)

	// List returns all snapshots for a simulation, oldest first.
	List(ctx context.Context, simulationID string) ([]Entry, error)
}

// postgresArchive implements SnapshotArchive.
type postgresArchive struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresArchive creates a SnapshotArchive backed by the given pool.
func NewPostgresArchive(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (SnapshotArchive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return nil, &ResourceError{
			ArchiveError: ArchiveError{
				Op:  "NewPostgresArchive",
				Err: fmt.Errorf("unable to connect to database: %w", err),
			},
			Resource: "database",
		}
	}

	return &postgresArchive{pool: pool, logger: logger}, nil
}

func (a *postgresArchive) Save(ctx context.Context, simulationID string, baseTime int64, payload []byte) (Entry, error) {
	tid, err := typeid.WithPrefix("snap")
	if err != nil {
		return Entry{}, &ArchiveError{Op: "save", Err: fmt.Errorf("failed to generate snapshot id: %w", err)}
	}

	var entry Entry
	row := a.pool.QueryRow(ctx, `
		INSERT INTO snapshots (id, simulation_id, base_time, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (simulation_id, base_time)
		DO UPDATE SET payload = EXCLUDED.payload
		RETURNING id, simulation_id, base_time, payload, created_at
	`, tid.String(), simulationID, baseTime, payload)
	if err := scanEntry(row, &entry); err != nil {
		return Entry{}, &ResourceError{
			ArchiveError: ArchiveError{Op: "save", Err: fmt.Errorf("failed to insert snapshot: %w", err)},
			Resource:     "database",
		}
	}

	a.logger.Info("archived snapshot",
		slog.String("id", entry.ID),
		slog.String("simulation_id", simulationID),
		slog.Int64("base_time", baseTime),
		slog.Int("payload_bytes", len(payload)),
	)
	return entry, nil
}

func (a *postgresArchive) LoadLatest(ctx context.Context, simulationID string, atOrBefore int64) (Entry, error) {
	var entry Entry
	row := a.pool.QueryRow(ctx, `
		SELECT id, simulation_id, base_time, payload, created_at
		FROM snapshots
		WHERE simulation_id = $1 AND base_time <= $2
		ORDER BY base_time DESC
		LIMIT 1
	`, simulationID, atOrBefore)
	if err := scanEntry(row, &entry); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, &NotFoundError{
				ArchiveError: ArchiveError{Op: "load latest", Err: fmt.Errorf("no snapshot at or before %d", atOrBefore)},
				SimulationID: simulationID,
				AtOrBefore:   atOrBefore,
			}
		}
		return Entry{}, &ResourceError{
			ArchiveError: ArchiveError{Op: "load latest", Err: fmt.Errorf("failed to query snapshot: %w", err)},
			Resource:     "database",
		}
	}
	return entry, nil
}

func (a *postgresArchive) List(ctx context.Context, simulationID string) ([]Entry, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT id, simulation_id, base_time, payload, created_at
		FROM snapshots
		WHERE simulation_id = $1
		ORDER BY base_time ASC
	`, simulationID)
	if err != nil {
		return nil, &ResourceError{
			ArchiveError: ArchiveError{Op: "list", Err: fmt.Errorf("failed to query snapshots: %w", err)},
			Resource:     "database",
		}
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := scanEntry(rows, &entry); err != nil {
			return nil, &ResourceError{
				ArchiveError: ArchiveError{Op: "list", Err: fmt.Errorf("failed to scan snapshot row: %w", err)},
				Resource:     "database",
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, &ResourceError{
			ArchiveError: ArchiveError{Op: "list", Err: fmt.Errorf("failed to read snapshot rows: %w", err)},
			Resource:     "database",
		}
	}
	return entries, nil
}

func scanEntry(row pgx.Row, entry *Entry) error {
	return row.Scan(&entry.ID, &entry.SimulationID, &entry.BaseTime, &entry.Payload, &entry.CreatedAt)
}
