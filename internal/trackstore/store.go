package trackstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/objectfusion/internal/types"
)

// ErrInvalidQuery is returned for query arguments that cannot select anything.
var ErrInvalidQuery = errors.New("invalid track store query")

// Store persists published snapshots in SQLite. It implements the engine's
// Sink and TentativeSink interfaces.
type Store struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies any
// pending migrations.
func Open(path string) (*Store, error) {
	// Pragmas go in the DSN so that every pooled connection gets them.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	diagf("opened track store %s", path)
	return s, nil
}

// Path returns the database file the store was opened from.
func (s *Store) Path() string { return s.path }

// Publish records a snapshot of confirmed tracks.
func (s *Store) Publish(ctx context.Context, snap types.Snapshot) error {
	return s.insert(ctx, snap, false)
}

// PublishTentative records a snapshot of tentative tracks.
func (s *Store) PublishTentative(ctx context.Context, snap types.Snapshot) error {
	return s.insert(ctx, snap, true)
}

func (s *Store) insert(ctx context.Context, snap types.Snapshot, tentative bool) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (stamp_unix_nanos, frame_id, object_count, tentative) VALUES (?, ?, ?, ?)`,
		snap.Stamp.UnixNano(), snap.FrameID, len(snap.Objects), tentative)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if len(snap.Objects) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO tracked_objects (
			snapshot_id, track_id, uuid, label, status, model, existence,
			x, y, z, yaw, velocity_x, velocity_y, speed_mps, yaw_rate,
			shape_type, length, width, height, cov_xx, cov_xy, cov_yy,
			update_count, miss_count, last_update_nanos, channels
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, o := range snap.Objects {
			p := o.Pose.Position
			_, err := stmt.ExecContext(ctx,
				id, int64(o.ID), o.UUID, o.Label.String(), string(o.Status), o.Model, o.ExistenceProbability,
				p.X, p.Y, p.Z, o.Pose.Orientation.Yaw(), o.VelocityX, o.VelocityY, o.SpeedMps, o.YawRate,
				string(o.Shape.Type), o.Shape.Length, o.Shape.Width, o.Shape.Height,
				o.PositionCovariance[0], o.PositionCovariance[1], o.PositionCovariance[3],
				o.UpdateCount, o.MissCount, o.LastUpdate.UnixNano(), channelList(o.Channels))
			if err != nil {
				return fmt.Errorf("insert track %d: %w", o.ID, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	tracef("stored snapshot %d at %s: %d object(s) tentative=%v", id,
		snap.Stamp.Format(time.RFC3339Nano), len(snap.Objects), tentative)
	return nil
}

// channelList is the sorted, de-duplicated set of channels that contributed
// to a track, comma separated.
func channelList(cs []types.ChannelContribution) string {
	names := make([]string, 0, len(cs))
	for _, c := range cs {
		names = append(names, c.Channel)
	}
	slices.Sort(names)
	return strings.Join(slices.Compact(names), ",")
}

// SnapshotSummary is one row of the snapshots table.
type SnapshotSummary struct {
	ID          int64
	Stamp       time.Time
	FrameID     string
	ObjectCount int
	Tentative   bool
}

// RecentSnapshots returns up to limit snapshots, newest first.
func (s *Store) RecentSnapshots(ctx context.Context, limit int) ([]SnapshotSummary, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit %d", ErrInvalidQuery, limit)
	}
	rows, err := s.QueryContext(ctx, `SELECT snapshot_id, stamp_unix_nanos, frame_id, object_count, tentative
		FROM snapshots ORDER BY stamp_unix_nanos DESC, snapshot_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotSummary
	for rows.Next() {
		var (
			sum   SnapshotSummary
			nanos int64
		)
		if err := rows.Scan(&sum.ID, &nanos, &sum.FrameID, &sum.ObjectCount, &sum.Tentative); err != nil {
			return nil, err
		}
		sum.Stamp = time.Unix(0, nanos).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// TrackPoint is one published state of a track.
type TrackPoint struct {
	SnapshotID int64
	Stamp      time.Time
	TrackID    uint64
	Label      string
	Status     types.TrackStatus
	Existence  float64
	X, Y, Yaw  float64
	SpeedMps   float64
	Channels   []string
}

// TrackHistory returns every confirmed publication of one track, oldest first.
func (s *Store) TrackHistory(ctx context.Context, trackID uint64) ([]TrackPoint, error) {
	rows, err := s.QueryContext(ctx, `SELECT o.snapshot_id, s.stamp_unix_nanos, o.track_id, o.label, o.status,
			o.existence, o.x, o.y, o.yaw, o.speed_mps, o.channels
		FROM tracked_objects o JOIN snapshots s ON s.snapshot_id = o.snapshot_id
		WHERE o.track_id = ? AND s.tentative = 0
		ORDER BY s.stamp_unix_nanos, o.snapshot_id`, int64(trackID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrackPoints(rows)
}

// TrackPoints returns every confirmed track state published in [from, to),
// ordered by track then time.
func (s *Store) TrackPoints(ctx context.Context, from, to time.Time) ([]TrackPoint, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: empty window [%s, %s)", ErrInvalidQuery,
			from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	rows, err := s.QueryContext(ctx, `SELECT o.snapshot_id, s.stamp_unix_nanos, o.track_id, o.label, o.status,
			o.existence, o.x, o.y, o.yaw, o.speed_mps, o.channels
		FROM tracked_objects o JOIN snapshots s ON s.snapshot_id = o.snapshot_id
		WHERE s.tentative = 0 AND s.stamp_unix_nanos >= ? AND s.stamp_unix_nanos < ?
		ORDER BY o.track_id, s.stamp_unix_nanos, o.snapshot_id`, from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrackPoints(rows)
}

func scanTrackPoints(rows *sql.Rows) ([]TrackPoint, error) {
	var out []TrackPoint
	for rows.Next() {
		var (
			p        TrackPoint
			nanos    int64
			id       int64
			status   string
			channels string
		)
		if err := rows.Scan(&p.SnapshotID, &nanos, &id, &p.Label, &status,
			&p.Existence, &p.X, &p.Y, &p.Yaw, &p.SpeedMps, &channels); err != nil {
			return nil, err
		}
		p.Stamp = time.Unix(0, nanos).UTC()
		p.TrackID = uint64(id)
		p.Status = types.TrackStatus(status)
		if channels != "" {
			p.Channels = strings.Split(channels, ",")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountBucket aggregates confirmed snapshots over one time bucket.
type CountBucket struct {
	Start      time.Time
	Snapshots  int
	MaxObjects int
	Tracks     int // distinct track ids seen in the bucket
}

// TrackCounts buckets confirmed snapshots in [from, to) into intervals of
// width bucket. Buckets without snapshots are omitted.
func (s *Store) TrackCounts(ctx context.Context, from, to time.Time, bucket time.Duration) ([]CountBucket, error) {
	if bucket <= 0 {
		return nil, fmt.Errorf("%w: bucket %s", ErrInvalidQuery, bucket)
	}
	if !to.After(from) {
		return nil, fmt.Errorf("%w: empty window [%s, %s)", ErrInvalidQuery,
			from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	rows, err := s.QueryContext(ctx, `SELECT (s.stamp_unix_nanos - ?1) / ?2 AS b,
			COUNT(DISTINCT s.snapshot_id), MAX(s.object_count), COUNT(DISTINCT o.track_id)
		FROM snapshots s LEFT JOIN tracked_objects o ON o.snapshot_id = s.snapshot_id
		WHERE s.tentative = 0 AND s.stamp_unix_nanos >= ?1 AND s.stamp_unix_nanos < ?3
		GROUP BY b ORDER BY b`, from.UnixNano(), int64(bucket), to.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CountBucket
	for rows.Next() {
		var (
			b CountBucket
			n int64
		)
		if err := rows.Scan(&n, &b.Snapshots, &b.MaxObjects, &b.Tracks); err != nil {
			return nil, err
		}
		b.Start = from.Add(time.Duration(n) * bucket).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBefore removes every snapshot stamped before cutoff together with
// its tracked objects, returning the number of snapshots removed.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.ExecContext(ctx, `DELETE FROM snapshots WHERE stamp_unix_nanos < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		opsf("retention: deleted %d snapshot(s) before %s", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// TimeSpan returns the stamps of the oldest and newest confirmed snapshots.
// ok is false when none are stored.
func (s *Store) TimeSpan(ctx context.Context) (first, last time.Time, ok bool, err error) {
	var lo, hi sql.NullInt64
	err = s.QueryRowContext(ctx,
		`SELECT MIN(stamp_unix_nanos), MAX(stamp_unix_nanos) FROM snapshots WHERE tentative = 0`).Scan(&lo, &hi)
	if err != nil || !lo.Valid {
		return time.Time{}, time.Time{}, false, err
	}
	return time.Unix(0, lo.Int64).UTC(), time.Unix(0, hi.Int64).UTC(), true, nil
}
