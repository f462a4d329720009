package trackstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/raceplayback/server/internal/geometry"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TrackBoundary is the database row of one scanned track. Edges are WKT
// LINESTRING Z values with height as the third ordinate.
type TrackBoundary struct {
	ID        uint           `gorm:"primarykey"`
	Track     string         `gorm:"uniqueIndex;size:64;not null"`
	LeftWKT   string         `gorm:"type:text;not null"`
	RightWKT  string         `gorm:"type:text;not null"`
	Stats     datatypes.JSON `gorm:"type:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TrackStats summarizes a scan.
type TrackStats struct {
	LeftLength  float64 `json:"leftLength"`
	RightLength float64 `json:"rightLength"`
	LeftPoints  int     `json:"leftPoints"`
	RightPoints int     `json:"rightPoints"`
	LengthRatio float64 `json:"lengthRatio"`
}

// PostgresConfig holds postgres connection settings.
type PostgresConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// GormStore keeps track boundaries in a SQL database.
type GormStore struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func gormConfig(log zerolog.Logger) *gorm.Config {
	return &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 newGormLogger(log),
	}
}

// OpenSQLite opens a sqlite store at path; ":memory:" keeps it in memory.
func OpenSQLite(path string, log zerolog.Logger) (*GormStore, error) {
	dsn := path
	if path == "" || path == ":memory:" {
		dsn = "file::memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One connection keeps an in-memory database alive and shared.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}
	log.Info().Str("path", path).Msg("Using SQLite track store")
	return NewGormStore(db, log)
}

// OpenPostgres connects to a postgres track store.
func OpenPostgres(cfg PostgresConfig, log zerolog.Logger) (*GormStore, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	log.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("Using Postgres track store")
	return NewGormStore(db, log)
}

// NewGormStore migrates the schema on db.
func NewGormStore(db *gorm.DB, log zerolog.Logger) (*GormStore, error) {
	if err := db.AutoMigrate(&TrackBoundary{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormStore{db: db, logger: log}, nil
}

func (s *GormStore) Load(ctx context.Context, track string) (Boundaries, error) {
	var row TrackBoundary
	err := s.db.WithContext(ctx).Where("track = ?", NormalizeTrack(track)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Boundaries{}, fmt.Errorf("%w: %s", ErrTrackNotScanned, track)
	}
	if err != nil {
		return Boundaries{}, fmt.Errorf("failed to load track %s: %w", track, err)
	}

	left, err := geometry.PointsFromWKT(row.LeftWKT)
	if err != nil {
		return Boundaries{}, fmt.Errorf("track %s left edge: %w", track, err)
	}
	right, err := geometry.PointsFromWKT(row.RightWKT)
	if err != nil {
		return Boundaries{}, fmt.Errorf("track %s right edge: %w", track, err)
	}
	return Boundaries{Track: row.Track, Left: left, Right: right}, nil
}

func (s *GormStore) Save(ctx context.Context, b Boundaries) error {
	if err := b.validate(); err != nil {
		return err
	}
	left, right := b.Edges()
	stats := TrackStats{
		LeftLength:  left.TotalLength(),
		RightLength: right.TotalLength(),
		LeftPoints:  left.Len(),
		RightPoints: right.Len(),
	}
	if stats.RightLength > 0 {
		stats.LengthRatio = stats.LeftLength / stats.RightLength
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}

	leftWKT, err := geometry.CurveToWKT(left.ArcLengthCurve)
	if err != nil {
		return fmt.Errorf("track %s left edge: %w", b.Track, err)
	}
	rightWKT, err := geometry.CurveToWKT(right.ArcLengthCurve)
	if err != nil {
		return fmt.Errorf("track %s right edge: %w", b.Track, err)
	}

	row := TrackBoundary{
		Track:    NormalizeTrack(b.Track),
		LeftWKT:  leftWKT,
		RightWKT: rightWKT,
		Stats:    datatypes.JSON(statsJSON),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "track"}},
		DoUpdates: clause.AssignmentColumns([]string{"left_wkt", "right_wkt", "stats", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save track %s: %w", b.Track, err)
	}
	s.logger.Debug().Str("track", row.Track).Int("left", stats.LeftPoints).Int("right", stats.RightPoints).Msg("Saved track boundaries")
	return nil
}

// Stats returns the scan summary stored with a track.
func (s *GormStore) Stats(ctx context.Context, track string) (TrackStats, error) {
	var row TrackBoundary
	err := s.db.WithContext(ctx).Select("stats").Where("track = ?", NormalizeTrack(track)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TrackStats{}, fmt.Errorf("%w: %s", ErrTrackNotScanned, track)
	}
	if err != nil {
		return TrackStats{}, err
	}
	var stats TrackStats
	if err := json.Unmarshal(row.Stats, &stats); err != nil {
		return TrackStats{}, fmt.Errorf("failed to decode stats: %w", err)
	}
	return stats, nil
}

func (s *GormStore) List(ctx context.Context) ([]string, error) {
	var tracks []string
	if err := s.db.WithContext(ctx).Model(&TrackBoundary{}).Order("track").Pluck("track", &tracks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	return tracks, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
