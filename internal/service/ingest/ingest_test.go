package ingest

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/keisoku/internal/model"
	"github.com/ashita-ai/keisoku/internal/testutil"
)

type fakeStore struct {
	inserted []model.TelemetryRecord
	byTask   []model.TelemetryRecord
	byRun    []model.TelemetryRecord
	err      error
}

func (f *fakeStore) InsertEntry(_ context.Context, rec model.TelemetryRecord) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	rec.ID = uuid.New()
	f.inserted = append(f.inserted, rec)
	return rec.ID, nil
}

func (f *fakeStore) ListEntriesByTask(context.Context, uuid.UUID, string, int) ([]model.TelemetryRecord, error) {
	return f.byTask, f.err
}

func (f *fakeStore) ListEntriesByRun(context.Context, uuid.UUID, string, int) ([]model.TelemetryRecord, error) {
	return f.byRun, f.err
}

func newTestService(store *fakeStore) *Service {
	return New(store, testutil.TestLogger())
}

func ident() *model.Identity {
	return &model.Identity{AgentID: "tester", OrgID: uuid.New(), Role: model.RoleAgent}
}

func validRequest() model.RecordTelemetryRequest {
	ts := float64(1_700_000_000_000)
	return model.RecordTelemetryRequest{
		TaskID:           "t1",
		Agent:            "planner",
		Model:            "gpt-4o",
		InputTokens:      1200,
		OutputTokens:     300,
		EstimatedCostUSD: 0.042,
		Timestamp:        &ts,
	}
}

func TestRecordValid(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)

	id, err := svc.Record(context.Background(), ident(), validRequest())
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("expected assigned id")
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(store.inserted))
	}
	rec := store.inserted[0]
	if rec.TimestampMs != 1_700_000_000_000 {
		t.Errorf("timestamp = %d, want request value", rec.TimestampMs)
	}
	if rec.InputTokens != 1200 || rec.OutputTokens != 300 {
		t.Errorf("tokens = %d/%d, want 1200/300", rec.InputTokens, rec.OutputTokens)
	}
}

func TestRecordUnauthenticated(t *testing.T) {
	svc := newTestService(&fakeStore{})

	// The identity check runs before any field validation.
	_, err := svc.Record(context.Background(), nil, model.RecordTelemetryRequest{})
	if !errors.Is(err, model.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestRecordValidationMessages(t *testing.T) {
	mutate := func(fn func(*model.RecordTelemetryRequest)) model.RecordTelemetryRequest {
		req := validRequest()
		fn(&req)
		return req
	}
	fptr := func(v float64) *float64 { return &v }
	sptr := func(v string) *string { return &v }

	tests := []struct {
		name string
		req  model.RecordTelemetryRequest
		want string
	}{
		{"empty agent", mutate(func(r *model.RecordTelemetryRequest) { r.Agent = "" }), "agent must be a non-empty string"},
		{"blank agent", mutate(func(r *model.RecordTelemetryRequest) { r.Agent = "   " }), "agent must be a non-empty string"},
		{"long agent", mutate(func(r *model.RecordTelemetryRequest) { r.Agent = strings.Repeat("a", 81) }), "agent must be <= 80 characters"},
		{"empty model", mutate(func(r *model.RecordTelemetryRequest) { r.Model = "" }), "model must be a non-empty string"},
		{"long model", mutate(func(r *model.RecordTelemetryRequest) { r.Model = strings.Repeat("m", 121) }), "model must be <= 120 characters"},
		{"negative input tokens", mutate(func(r *model.RecordTelemetryRequest) { r.InputTokens = -1 }), "inputTokens must be a non-negative integer"},
		{"fractional input tokens", mutate(func(r *model.RecordTelemetryRequest) { r.InputTokens = 1.5 }), "inputTokens must be a non-negative integer"},
		{"NaN input tokens", mutate(func(r *model.RecordTelemetryRequest) { r.InputTokens = math.NaN() }), "inputTokens must be a non-negative integer"},
		{"infinite output tokens", mutate(func(r *model.RecordTelemetryRequest) { r.OutputTokens = math.Inf(1) }), "outputTokens must be a non-negative integer"},
		{"negative output tokens", mutate(func(r *model.RecordTelemetryRequest) { r.OutputTokens = -3 }), "outputTokens must be a non-negative integer"},
		{"negative cost", mutate(func(r *model.RecordTelemetryRequest) { r.EstimatedCostUSD = -0.01 }), "estimatedCostUsd must be a non-negative number"},
		{"NaN cost", mutate(func(r *model.RecordTelemetryRequest) { r.EstimatedCostUSD = math.NaN() }), "estimatedCostUsd must be a non-negative number"},
		{"negative timestamp", mutate(func(r *model.RecordTelemetryRequest) { r.Timestamp = fptr(-1) }), "timestamp must be a non-negative integer"},
		{"fractional timestamp", mutate(func(r *model.RecordTelemetryRequest) { r.Timestamp = fptr(1.5) }), "timestamp must be a non-negative integer"},
		{"long runId", mutate(func(r *model.RecordTelemetryRequest) { r.RunID = sptr(strings.Repeat("r", 201)) }), "runId must be <= 200 characters"},
		{"long sessionKey", mutate(func(r *model.RecordTelemetryRequest) { r.SessionKey = sptr(strings.Repeat("s", 201)) }), "sessionKey must be <= 200 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			_, err := newTestService(store).Record(context.Background(), ident(), tt.req)

			var verr model.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Error() != tt.want {
				t.Errorf("message = %q, want %q", verr.Error(), tt.want)
			}
			if len(store.inserted) != 0 {
				t.Error("invalid record must not be written")
			}
		})
	}
}

func TestRecordValidationOrder(t *testing.T) {
	// Multiple invalid fields: the first in field order wins.
	req := validRequest()
	req.Agent = ""
	req.Model = ""
	req.InputTokens = -1

	_, err := newTestService(&fakeStore{}).Record(context.Background(), ident(), req)
	var verr model.ValidationError
	if !errors.As(err, &verr) || verr.Error() != "agent must be a non-empty string" {
		t.Errorf("expected agent error first, got %v", err)
	}
}

func TestRecordBoundaryValues(t *testing.T) {
	// Zero tokens, zero cost, and zero timestamp are all valid.
	req := validRequest()
	req.InputTokens = 0
	req.OutputTokens = 0
	req.EstimatedCostUSD = 0
	ts := float64(0)
	req.Timestamp = &ts

	store := &fakeStore{}
	if _, err := newTestService(store).Record(context.Background(), ident(), req); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if store.inserted[0].TimestampMs != 0 {
		t.Errorf("timestamp = %d, want 0", store.inserted[0].TimestampMs)
	}

	// Lengths exactly at the limits pass.
	req = validRequest()
	req.Agent = strings.Repeat("a", 80)
	req.Model = strings.Repeat("m", 120)
	if _, err := newTestService(&fakeStore{}).Record(context.Background(), ident(), req); err != nil {
		t.Fatalf("Record at limits error: %v", err)
	}

	// Limits count runes, not bytes: 80 multibyte runes fit even though
	// they encode to more than 80 bytes.
	req = validRequest()
	req.Agent = strings.Repeat("計", 80)
	req.Model = strings.Repeat("測", 120)
	if _, err := newTestService(&fakeStore{}).Record(context.Background(), ident(), req); err != nil {
		t.Fatalf("Record with multibyte names error: %v", err)
	}

	req = validRequest()
	req.Agent = strings.Repeat("計", 81)
	_, err := newTestService(&fakeStore{}).Record(context.Background(), ident(), req)
	var verr model.ValidationError
	if !errors.As(err, &verr) || verr.Error() != "agent must be <= 80 characters" {
		t.Errorf("81-rune agent error = %v", err)
	}
}

func TestRecordDefaultsTimestamp(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)
	now := time.UnixMilli(1_699_999_999_000).UTC()
	svc.now = func() time.Time { return now }

	req := validRequest()
	req.Timestamp = nil

	if _, err := svc.Record(context.Background(), ident(), req); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if store.inserted[0].TimestampMs != now.UnixMilli() {
		t.Errorf("timestamp = %d, want server time %d", store.inserted[0].TimestampMs, now.UnixMilli())
	}
}

func TestRecordNormalizesOptionals(t *testing.T) {
	sptr := func(v string) *string { return &v }

	req := validRequest()
	req.RunID = sptr("  run-7  ")
	req.SessionKey = sptr("   ")

	store := &fakeStore{}
	if _, err := newTestService(store).Record(context.Background(), ident(), req); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	rec := store.inserted[0]
	if rec.RunID == nil || *rec.RunID != "run-7" {
		t.Errorf("runId = %v, want trimmed run-7", rec.RunID)
	}
	if rec.SessionKey != nil {
		t.Errorf("sessionKey = %v, want nil (blank collapses to absent)", rec.SessionKey)
	}
}

func TestListByRunValidation(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, _, err := svc.ListByRun(context.Background(), ident(), "   ", nil)
	var verr model.ValidationError
	if !errors.As(err, &verr) || verr.Error() != "runId must be a non-empty string" {
		t.Errorf("blank runId error = %v", err)
	}

	_, _, err = svc.ListByRun(context.Background(), ident(), strings.Repeat("r", 201), nil)
	if !errors.As(err, &verr) || verr.Error() != "runId must be <= 200 characters" {
		t.Errorf("long runId error = %v", err)
	}

	// 200 multibyte runes is still within the cap.
	if _, _, err := svc.ListByRun(context.Background(), ident(), strings.Repeat("ラ", 200), nil); err != nil {
		t.Errorf("200-rune runId error = %v", err)
	}
}

func TestListLimits(t *testing.T) {
	svc := newTestService(&fakeStore{})
	ctx := context.Background()
	iptr := func(v int) *int { return &v }

	_, limit, err := svc.ListByTask(ctx, ident(), "t1", nil)
	if err != nil || limit != 50 {
		t.Errorf("default limit = %d (err %v), want 50", limit, err)
	}

	_, limit, err = svc.ListByTask(ctx, ident(), "t1", iptr(500))
	if err != nil || limit != 200 {
		t.Errorf("clamped limit = %d (err %v), want 200", limit, err)
	}

	// An explicit non-positive limit is rejected, not defaulted.
	for _, bad := range []int{0, -1} {
		_, _, err = svc.ListByTask(ctx, ident(), "t1", iptr(bad))
		var verr model.ValidationError
		if !errors.As(err, &verr) || verr.Error() != "limit must be >= 1" {
			t.Errorf("limit %d error = %v, want limit must be >= 1", bad, err)
		}
	}
}

func TestListUnauthenticated(t *testing.T) {
	svc := newTestService(&fakeStore{})
	ctx := context.Background()

	if _, _, err := svc.ListByTask(ctx, nil, "t1", nil); !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("ListByTask: expected ErrUnauthenticated, got %v", err)
	}
	if _, _, err := svc.ListByRun(ctx, nil, "r1", nil); !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("ListByRun: expected ErrUnauthenticated, got %v", err)
	}
}
