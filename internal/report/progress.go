package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/partnerhealth/report-core/internal/config"
)

// State is where an in-flight generation currently is.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateRetrying  State = "retrying"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Progress is the last known state of a generation for one (user, hospital).
// It is advisory: the report store is the source of truth and nothing
// decides correctness from it.
type Progress struct {
	UserID     string    `json:"user_id"`
	HospitalID string    `json:"hospital_id"`
	State      State     `json:"state"`
	Attempt    int       `json:"attempt"`
	Error      string    `json:"error,omitempty"`
	ReportURL  string    `json:"report_url,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ProgressTracker stores generation progress with a TTL.
type ProgressTracker interface {
	Set(ctx context.Context, p Progress) error
	Get(ctx context.Context, userID, hospitalID string) (*Progress, error)
	Close() error
}

const defaultProgressTTL = 30 * time.Minute

// BadgerProgress is a ProgressTracker backed by BadgerDB entries that expire
// on their own.
type BadgerProgress struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenProgress opens the tracker described by cfg.
func OpenProgress(cfg config.ProgressConfig) (*BadgerProgress, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, eris.New("report: progress path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, eris.Wrapf(err, "report: create progress dir %s", cfg.Path)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(&badgerLogger{log: zap.L().Named("badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, eris.Wrap(err, "report: open progress store")
	}

	ttl := time.Duration(cfg.TTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = defaultProgressTTL
	}
	return &BadgerProgress{db: db, ttl: ttl}, nil
}

func progressKey(userID, hospitalID string) []byte {
	return []byte("progress/" + userID + "/" + hospitalID)
}

// Set overwrites the entry and restarts its TTL.
func (b *BadgerProgress) Set(ctx context.Context, p Progress) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "report: set progress")
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	val, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "report: marshal progress")
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(progressKey(p.UserID, p.HospitalID), val).WithTTL(b.ttl))
	})
	if err != nil {
		return eris.Wrap(err, "report: set progress")
	}
	return nil
}

// Get returns nil when nothing is tracked or the entry expired.
func (b *BadgerProgress) Get(ctx context.Context, userID, hospitalID string) (*Progress, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "report: get progress")
	}
	var p *Progress
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(progressKey(userID, hospitalID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			p = &Progress{}
			return json.Unmarshal(val, p)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "report: get progress")
	}
	return p, nil
}

// Close releases the database.
func (b *BadgerProgress) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger's internal logging to zap.
type badgerLogger struct {
	log *zap.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}
