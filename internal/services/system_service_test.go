package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/solventline/api/internal/domain"
)

type stubHealthRepository struct {
	collectFunc func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.collectFunc == nil {
		return domain.SystemHealthReport{}, errors.New("unexpected Collect call")
	}
	return s.collectFunc(ctx)
}

func TestSystemHealthReportFillsDefaults(t *testing.T) {
	now := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	repo := &stubHealthRepository{
		collectFunc: func(ctx context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
				},
			}, nil
		},
	}
	service, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing system service: %v", err)
	}

	report, err := service.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected derived status ok, got %s", report.Status)
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generated at %v, got %v", now, report.GeneratedAt)
	}
}

func TestSystemHealthReportErrorDominates(t *testing.T) {
	repo := &stubHealthRepository{
		collectFunc: func(ctx context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
					"pubsub":    {Status: domain.HealthStatusDegraded},
					"gateway":   {Status: domain.HealthStatusError},
				},
			}, nil
		},
	}
	service, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if err != nil {
		t.Fatalf("unexpected error constructing system service: %v", err)
	}

	report, err := service.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error status, got %s", report.Status)
	}
}

func TestSystemNextCounterValueDefaultsStep(t *testing.T) {
	counters := &stubCounterRepository{
		nextFunc: func(ctx context.Context, counterID string, step int64) (int64, error) {
			if counterID != "invoices" {
				t.Fatalf("expected trimmed counter id, got %q", counterID)
			}
			if step != 1 {
				t.Fatalf("expected default step 1, got %d", step)
			}
			return 7, nil
		},
	}
	service, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepository{},
		Counters:         counters,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing system service: %v", err)
	}

	value, err := service.NextCounterValue(context.Background(), CounterCommand{CounterID: " invoices "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 7 {
		t.Fatalf("expected 7, got %d", value)
	}
}

func TestSystemNextCounterValueRequiresID(t *testing.T) {
	service, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepository{},
		Counters:         &stubCounterRepository{},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing system service: %v", err)
	}

	if _, err := service.NextCounterValue(context.Background(), CounterCommand{}); !errors.Is(err, ErrSystemInvalidInput) {
		t.Fatalf("expected ErrSystemInvalidInput, got %v", err)
	}
}
