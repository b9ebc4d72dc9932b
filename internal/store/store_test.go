package store

import (
	"testing"
	"time"
)

func TestUniqueKeyStableAcrossZones(t *testing.T) {
	utc := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	est := utc.In(time.FixedZone("EST", -5*3600))
	if UniqueKey(42, utc) != UniqueKey(42, est) {
		t.Fatalf("key must not depend on zone representation")
	}
}

func TestUniqueKeyDistinguishesIncarnations(t *testing.T) {
	now := time.Now()
	if UniqueKey(42, now) == UniqueKey(42, now.Add(time.Nanosecond)) {
		t.Fatalf("same pid, different start must differ")
	}
	if UniqueKey(42, now) == UniqueKey(43, now) {
		t.Fatalf("different pid must differ")
	}
}

func TestRecordKey(t *testing.T) {
	now := time.Now()
	r := Record{PID: 7, StartedAt: now}
	if r.Key() != UniqueKey(7, now) {
		t.Fatalf("Key() = %q", r.Key())
	}
}
