// cmd/oracle-mcp-server/token_estimator_test.go
package main

import (
	"bytes"
	"errors"
	"testing"
)

// wordEstimator is a deterministic TokenEstimator stand-in for tests.
type wordEstimator struct{}

func (wordEstimator) Model() string { return "words" }

func (wordEstimator) Count(text string) (int, error) {
	n := 0
	inWord := false
	for _, r := range text {
		switch {
		case r == ' ' || r == '\n' || r == '\t':
			inWord = false
		case !inWord:
			n++
			inWord = true
		}
	}
	return n, nil
}

func withEstimator(t *testing.T, e TokenEstimator) {
	t.Helper()
	oldTracking, oldEstimator := tokenTracking, tokenEstimator
	tokenTracking = e != nil
	tokenEstimator = e
	t.Cleanup(func() {
		tokenTracking = oldTracking
		tokenEstimator = oldEstimator
	})
}

func TestNewTokenEstimatorDefaultsModel(t *testing.T) {
	est, err := NewTokenEstimator("")
	if err != nil {
		t.Skipf("encoding unavailable: %v", err)
	}
	if est.Model() != "cl100k_base" {
		t.Errorf("Model() = %q", est.Model())
	}
	n, err := est.Count("SELECT * FROM DUAL")
	if err != nil || n == 0 {
		t.Errorf("Count() = %d, %v", n, err)
	}
}

func TestEstimateDisabled(t *testing.T) {
	withEstimator(t, nil)

	n, err := estimateTokensForValue(map[string]string{"sql": "SELECT 1 FROM DUAL"})
	if n != 0 || err != nil {
		t.Errorf("estimateTokensForValue() = %d, %v, want 0 when disabled", n, err)
	}
}

func TestEstimateCountsEncodedValue(t *testing.T) {
	withEstimator(t, wordEstimator{})

	n, err := estimateTokensForValue(QueryOracleInput{SQL: "SELECT one two three"})
	if err != nil {
		t.Fatalf("estimateTokensForValue() error = %v", err)
	}
	if n == 0 {
		t.Error("estimate is zero for non-empty value")
	}
}

func TestLimitedWriterCapsOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	lw := &limitedWriter{buf: buf, limit: 8}

	if _, err := lw.Write([]byte("12345")); err != nil {
		t.Fatalf("first write error = %v", err)
	}
	if _, err := lw.Write([]byte("67890")); !errors.Is(err, errLimitExceeded) {
		t.Fatalf("second write error = %v, want limit exceeded", err)
	}
	if buf.Len() != 8 {
		t.Errorf("buffered %d bytes, want 8", buf.Len())
	}
}

func TestEstimateLargePayloadUsesHeuristic(t *testing.T) {
	withEstimator(t, wordEstimator{})

	big := make([]string, 0, 1<<16)
	for i := 0; i < 1<<16; i++ {
		big = append(big, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	}
	n, err := estimateTokensForValue(big)
	if err != nil {
		t.Fatalf("estimateTokensForValue() error = %v", err)
	}
	if n != maxTokenEstimationBytes/4 {
		t.Errorf("estimate = %d, want cap heuristic %d", n, maxTokenEstimationBytes/4)
	}
}
