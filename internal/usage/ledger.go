// Package usage persists how many users were simulated per calendar day so
// the daily ceiling holds across separate runs.
package usage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	jsoniter "github.com/json-iterator/go"
)

const dateLayout = "2006-01-02"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrQuotaExceeded is returned when a reservation would exceed the daily ceiling.
var ErrQuotaExceeded = errors.New("daily user ceiling exceeded")

// Record is the on-disk ledger content.
type Record struct {
	Date  string `json:"date"`
	Users int    `json:"users"`
}

// Reservation reports the ledger state after a successful reservation.
type Reservation struct {
	Date      string
	Used      int
	Remaining int
}

// Ledger is a file-backed daily counter guarded by an exclusive file lock.
type Ledger struct {
	path string
	lock *flock.Flock
	// RetryDelay is the interval between lock attempts.
	RetryDelay time.Duration
}

// Open returns a ledger stored at path. The file is created on first reservation.
func Open(path string) *Ledger {
	return &Ledger{
		path:       path,
		lock:       flock.New(path + ".lock"),
		RetryDelay: 50 * time.Millisecond,
	}
}

// Path returns the ledger file location.
func (l *Ledger) Path() string { return l.path }

// Reserve adds n users to today's count if the total stays within ceiling.
// The read-check-write happens under the file lock so concurrent runs cannot
// overshoot the ceiling together.
func (l *Ledger) Reserve(ctx context.Context, n, ceiling int, now time.Time) (Reservation, error) {
	if n <= 0 {
		return Reservation{}, fmt.Errorf("reserve: user count must be positive, got %d", n)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return Reservation{}, fmt.Errorf("usage ledger dir: %w", err)
	}
	locked, err := l.lock.TryLockContext(ctx, l.RetryDelay)
	if err != nil {
		return Reservation{}, fmt.Errorf("lock usage ledger: %w", err)
	}
	if !locked {
		return Reservation{}, fmt.Errorf("lock usage ledger: not acquired")
	}
	defer l.lock.Unlock()

	today := now.Format(dateLayout)
	rec, err := l.read()
	if err != nil {
		return Reservation{}, err
	}
	if rec.Date != today {
		rec = Record{Date: today}
	}

	if rec.Users+n > ceiling {
		return Reservation{Date: today, Used: rec.Users, Remaining: max(ceiling-rec.Users, 0)},
			fmt.Errorf("%w: %d already simulated on %s, %d requested, ceiling %d", ErrQuotaExceeded, rec.Users, today, n, ceiling)
	}

	rec.Users += n
	if err := l.write(rec); err != nil {
		return Reservation{}, err
	}
	return Reservation{Date: today, Used: rec.Users, Remaining: ceiling - rec.Users}, nil
}

// Current returns the recorded usage for the day of now without locking.
func (l *Ledger) Current(now time.Time) (Record, error) {
	rec, err := l.read()
	if err != nil {
		return Record{}, err
	}
	today := now.Format(dateLayout)
	if rec.Date != today {
		return Record{Date: today}, nil
	}
	return rec, nil
}

func (l *Ledger) read() (Record, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("read usage ledger: %w", err)
	}
	if len(data) == 0 {
		return Record{}, nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode usage ledger %s: %w", l.path, err)
	}
	return rec, nil
}

func (l *Ledger) write(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode usage ledger: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write usage ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace usage ledger: %w", err)
	}
	return nil
}
