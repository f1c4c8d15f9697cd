package helpers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SetupTestDB creates a test database connection
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL or DATABASE_URL must be set for database tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	return pool
}

// CleanupTestDB removes rows created by tests and closes the pool
func CleanupTestDB(t *testing.T, pool *pgxpool.Pool) {
	ctx := context.Background()
	tables := []string{
		"points_transactions",
		"points_balances",
		"device_tokens",
		"aligner_quests",
		"mission_instances",
		"mission_templates",
		"daily_compliance",
		"wear_sessions",
		"aligners",
		"treatment_phases",
		"treatments",
	}
	for _, table := range tables {
		query := fmt.Sprintf("DELETE FROM %s WHERE patient_id IN (SELECT id FROM patients WHERE clerk_id LIKE 'clerk_test%%')", table)
		switch table {
		case "mission_templates":
			query = "DELETE FROM mission_templates WHERE title LIKE 'test%'"
		case "aligners", "treatment_phases":
			query = fmt.Sprintf("DELETE FROM %s WHERE treatment_id IN (SELECT t.id FROM treatments t JOIN patients p ON p.id = t.patient_id WHERE p.clerk_id LIKE 'clerk_test%%')", table)
		}
		if _, err := pool.Exec(ctx, query); err != nil {
			t.Logf("Warning: failed to cleanup %s: %v", table, err)
		}
	}
	if _, err := pool.Exec(ctx, "DELETE FROM patients WHERE clerk_id LIKE 'clerk_test%'"); err != nil {
		t.Logf("Warning: failed to cleanup patients: %v", err)
	}
	pool.Close()
}

// GenerateMockClerkJWT generates a mock JWT token for testing
func GenerateMockClerkJWT(clerkID string) (string, error) {
	// Use a test secret key
	secretKey := []byte("test-secret-key-for-testing-only")

	claims := jwt.MapClaims{
		"sub": clerkID,                               // Clerk user ID
		"iss": "https://clerk.test",                  // Issuer
		"iat": time.Now().Unix(),                     // Issued at
		"exp": time.Now().Add(time.Hour * 24).Unix(), // Expires in 24 hours
		"azp": "test-app-id",                         // Authorized party
		"sid": "sess_test123",                        // Session ID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}
