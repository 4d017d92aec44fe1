package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			t.Errorf("path = %q", r.URL.Path)
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "P1_LEFT_fundus.jpg" {
			t.Errorf("filename = %q", header.Filename)
		}
		json.NewEncoder(w).Encode(Result{
			Label:       "Moderate NPDR",
			Confidences: map[string]float64{"Moderate NPDR": 0.91, "No DR": 0.04},
		})
	}))
	defer srv.Close()

	c := NewClient(map[string]string{"DR": srv.URL}, 5*time.Second)

	res, err := c.Predict(context.Background(), "DR", "P1_LEFT_fundus.jpg", strings.NewReader("img"))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if res.Label != "Moderate NPDR" {
		t.Fatalf("label = %q", res.Label)
	}
	if res.Category != "DR" {
		t.Fatalf("category = %q", res.Category)
	}
	if res.Confidences["Moderate NPDR"] != 0.91 {
		t.Fatalf("confidence = %v", res.Confidences["Moderate NPDR"])
	}
}

func TestPredictUnknownCategory(t *testing.T) {
	c := NewClient(map[string]string{"DR": "http://localhost:9"}, time.Second)

	_, err := c.Predict(context.Background(), "AMD", "f.jpg", strings.NewReader("x"))
	if !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if c.Supports("AMD") {
		t.Fatal("AMD should not be supported")
	}
	if !c.Supports("DR") {
		t.Fatal("DR should be supported")
	}
}

func TestPredictServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(map[string]string{"Glaucoma": srv.URL}, time.Second)

	_, err := c.Predict(context.Background(), "Glaucoma", "f.jpg", strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("error = %v", err)
	}
}
