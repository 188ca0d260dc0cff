package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestHealthCheckAllHealthy(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer db.Close()
	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	checker := NewHealthChecker(db, redisClient)
	status := checker.Check(context.Background())

	if status.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", status.Status)
	}
	if len(status.Dependencies) != 2 {
		t.Errorf("Expected 2 dependencies, got %d", len(status.Dependencies))
	}
}

func TestHealthCheckRedisLossOnlyDegrades(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer db.Close()
	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()
	mr.Close()

	checker := NewHealthChecker(db, redisClient)
	status := checker.Check(context.Background())

	if status.Status != StatusDegraded {
		t.Errorf("Expected degraded when only redis is down, got %s", status.Status)
	}
	if status.Dependencies["redis"].Status != StatusUnhealthy {
		t.Errorf("Expected redis dependency unhealthy, got %s", status.Dependencies["redis"].Status)
	}
}

func TestLivenessAlwaysOK(t *testing.T) {
	checker := NewHealthChecker(nil, nil)

	rec := httptest.NewRecorder()
	checker.Liveness(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestReadinessReportsUnhealthyDatabase(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer db.Close()
	mock.ExpectPing().WillReturnError(context.DeadlineExceeded)

	checker := NewHealthChecker(db, nil)
	rec := httptest.NewRecorder()
	checker.Readiness(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if status.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy, got %s", status.Status)
	}
}
