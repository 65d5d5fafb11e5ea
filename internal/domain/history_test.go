package domain

import (
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestHistoryOrder(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	records := []TransactionRecord{
		{TransactionID: "a", CreatedAt: ts},
		{TransactionID: "c", CreatedAt: ts.Add(-time.Second)},
		{TransactionID: "b", CreatedAt: ts},
		{TransactionID: "d", CreatedAt: ts.Add(time.Second)},
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Before(records[j]) })

	got := make([]string, len(records))
	for i, r := range records {
		got[i] = r.TransactionID
	}

	want := []string{"d", "b", "a", "c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("history order mismatch (-want +got):\n%s", diff)
	}

	cursor := CursorOf(records[1])
	if cursor.After(records[0]) || cursor.After(records[1]) {
		t.Errorf("cursor %+v reports records at or before it as after", cursor)
	}

	if !cursor.After(records[2]) || !cursor.After(records[3]) {
		t.Errorf("cursor %+v does not report later records as after", cursor)
	}
}

func TestDecodeCursor(t *testing.T) {
	t.Parallel()

	want := HistoryCursor{
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC),
		TransactionID: "5b8c8a59-6b39-4bd6-a9a0-d4e0b1f0f3c2",
	}

	got, err := DecodeCursor(want.Encode())
	if err != nil {
		t.Fatalf("DecodeCursor(%q) returned error: %v", want.Encode(), err)
	}

	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("DecodeCursor() mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"%%%", "bm9waXBl", "fGFiYw"} {
		if _, err := DecodeCursor(bad); err != ErrInvalidCursor {
			t.Errorf("DecodeCursor(%q) returned error %v, want %v", bad, err, ErrInvalidCursor)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	for _, err := range []error{ErrConcurrentConflict, ErrStoreUnavailable} {
		if !IsRetryable(err) {
			t.Errorf("IsRetryable(%v) = false, want true", err)
		}
	}

	for _, err := range []error{ErrInvalidAmount, ErrSelfTransfer, ErrInsufficientBalance, ErrOutcomeUnknown} {
		if IsRetryable(err) {
			t.Errorf("IsRetryable(%v) = true, want false", err)
		}
	}
}
