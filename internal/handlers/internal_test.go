package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/solventline/api/internal/domain"
	"github.com/solventline/api/internal/services"
)

func TestInternalHandlersNextCounterValue(t *testing.T) {
	var captured services.CounterCommand
	service := &counterStubSystemService{
		nextFunc: func(ctx context.Context, cmd services.CounterCommand) (int64, error) {
			captured = cmd
			return 43, nil
		},
	}

	router := chi.NewRouter()
	router.Route("/internal", NewInternalHandlers(service).Routes)

	req := httptest.NewRequest(http.MethodPost, "/internal/counters/orders-2025", strings.NewReader(`{"step":1}`))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.CounterID != "orders-2025" || captured.Step != 1 {
		t.Fatalf("unexpected command captured %#v", captured)
	}

	var resp counterResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Value != 43 {
		t.Fatalf("expected value 43, got %d", resp.Value)
	}
}

func TestInternalHandlersNextCounterValueEmptyBody(t *testing.T) {
	service := &counterStubSystemService{
		nextFunc: func(ctx context.Context, cmd services.CounterCommand) (int64, error) {
			if cmd.Step != 0 {
				t.Fatalf("expected zero step for empty body, got %d", cmd.Step)
			}
			return 1, nil
		},
	}

	router := chi.NewRouter()
	router.Route("/internal", NewInternalHandlers(service).Routes)

	req := httptest.NewRequest(http.MethodPost, "/internal/counters/invoices", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestInternalHandlersNextCounterValueInvalidInput(t *testing.T) {
	service := &counterStubSystemService{
		nextFunc: func(ctx context.Context, cmd services.CounterCommand) (int64, error) {
			return 0, services.ErrSystemInvalidInput
		},
	}

	router := chi.NewRouter()
	router.Route("/internal", NewInternalHandlers(service).Routes)

	req := httptest.NewRequest(http.MethodPost, "/internal/counters/invoices", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestInternalHandlersServiceUnavailable(t *testing.T) {
	router := chi.NewRouter()
	router.Route("/internal", NewInternalHandlers(nil).Routes)

	req := httptest.NewRequest(http.MethodPost, "/internal/counters/invoices", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

type counterStubSystemService struct {
	nextFunc func(ctx context.Context, cmd services.CounterCommand) (int64, error)
}

func (s *counterStubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return domain.SystemHealthReport{}, errors.New("not implemented")
}

func (s *counterStubSystemService) NextCounterValue(ctx context.Context, cmd services.CounterCommand) (int64, error) {
	if s.nextFunc != nil {
		return s.nextFunc(ctx, cmd)
	}
	return 0, errors.New("not implemented")
}
