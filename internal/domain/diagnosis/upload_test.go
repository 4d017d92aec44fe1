package diagnosis

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/oculoflow/oculoflow/internal/domain/patient"
	"github.com/oculoflow/oculoflow/internal/platform/blobstore"
	"github.com/oculoflow/oculoflow/internal/platform/prediction"
)

type mockPredictor struct {
	supported map[string]bool
	failOn    map[string]bool // by file name
	calls     int
}

func (m *mockPredictor) Supports(category string) bool {
	return m.supported[category]
}

func (m *mockPredictor) Predict(_ context.Context, category, fileName string, _ io.Reader) (*prediction.Result, error) {
	m.calls++
	if m.failOn[fileName] {
		return nil, errors.New("model unavailable")
	}
	return &prediction.Result{
		Category:    category,
		Label:       "Moderate NPDR",
		Confidences: map[string]float64{"Moderate NPDR": 0.91, "No DR": 0.04, "Severe NPDR": 0.05},
	}, nil
}

func fixtureUploader(t *testing.T) (*Uploader, *mockPatients, *mockPredictor) {
	t.Helper()
	p := &patient.Patient{PatientRef: "P1", Name: "Jane", NIC: "902345678V", Status: patient.StatusCompleted}
	patients := newMockPatients(p)
	entries := newMockEntries()
	svc := NewService(patients, entries, nil)
	predictor := &mockPredictor{supported: map[string]bool{patient.CategoryDR: true}, failOn: map[string]bool{}}
	return NewUploader(svc, blobstore.NewInMemoryBlobStore(), predictor), patients, predictor
}

func jpegFile(name string) UploadFile {
	return UploadFile{Name: name, ContentType: "image/jpeg", Data: []byte("img-bytes")}
}

func TestUploadBatchCreatesEntries(t *testing.T) {
	u, patients, _ := fixtureUploader(t)

	results, err := u.UploadBatch(context.Background(), patient.CategoryDR, []UploadFile{
		jpegFile("P1_LEFT_fundus.jpg"),
		jpegFile("P1_RIGHT_fundus.jpg"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
	for _, r := range results {
		if r.Status != "created" {
			t.Fatalf("%s: status = %q (%s)", r.FileName, r.Status, r.Error)
		}
		if r.Entry == nil || r.Entry.Label != "Moderate NPDR" {
			t.Fatalf("%s: entry = %+v", r.FileName, r.Entry)
		}
		if len(r.Entry.ConfidenceScores) != 3 || r.Entry.ConfidenceScores[0] != 0.91 {
			t.Fatalf("%s: scores = %v", r.FileName, r.Entry.ConfidenceScores)
		}
		if r.Entry.ImageURL == "" {
			t.Fatalf("%s: no image url", r.FileName)
		}
	}

	if patients.byRef["P1"].Status != patient.StatusPreMonitoring {
		t.Fatalf("patient status = %q", patients.byRef["P1"].Status)
	}
}

func TestUploadBatchBadFilenameFailsOnlyThatFile(t *testing.T) {
	u, _, _ := fixtureUploader(t)

	results, err := u.UploadBatch(context.Background(), patient.CategoryDR, []UploadFile{
		jpegFile("P1_front_fundus.jpg"), // no LEFT/RIGHT token
		jpegFile("P1_LEFT_fundus.jpg"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if results[0].Status != "failed" {
		t.Fatalf("first = %+v", results[0])
	}
	if results[1].Status != "created" {
		t.Fatalf("second = %+v", results[1])
	}
}

func TestUploadBatchDependencyFailureAbortsRest(t *testing.T) {
	u, _, predictor := fixtureUploader(t)
	predictor.failOn["P1_RIGHT_fundus.jpg"] = true

	results, err := u.UploadBatch(context.Background(), patient.CategoryDR, []UploadFile{
		jpegFile("P1_LEFT_fundus.jpg"),
		jpegFile("P1_RIGHT_fundus.jpg"),
		jpegFile("P1_LEFT_macula.jpg"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if results[0].Status != "created" {
		t.Fatalf("first = %+v", results[0])
	}
	if results[1].Status != "failed" {
		t.Fatalf("second = %+v", results[1])
	}
	if results[2].Status != "aborted" {
		t.Fatalf("third = %+v", results[2])
	}
	// The aborted file never reached the model.
	if predictor.calls != 2 {
		t.Fatalf("calls = %d", predictor.calls)
	}
}

func TestUploadBatchEmpty(t *testing.T) {
	u, _, _ := fixtureUploader(t)

	_, err := u.UploadBatch(context.Background(), patient.CategoryDR, nil)
	if appCode(t, err) != "VALIDATION_ERROR" {
		t.Fatalf("err = %v", err)
	}
}

func TestUploadBatchUnsupportedCategorySkipsPrediction(t *testing.T) {
	u, _, predictor := fixtureUploader(t)

	results, err := u.UploadBatch(context.Background(), patient.CategoryOthers, []UploadFile{
		jpegFile("P1_LEFT_fundus.jpg"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if results[0].Status != "created" {
		t.Fatalf("result = %+v", results[0])
	}
	if results[0].Entry.Label != "" {
		t.Fatalf("label = %q", results[0].Entry.Label)
	}
	if predictor.calls != 0 {
		t.Fatalf("calls = %d", predictor.calls)
	}
}

func TestPredictOnly(t *testing.T) {
	u, _, _ := fixtureUploader(t)

	res, err := u.PredictOnly(context.Background(), patient.CategoryDR, "P1_LEFT_fundus.jpg", []byte("img"))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if res.Label != "Moderate NPDR" {
		t.Fatalf("label = %q", res.Label)
	}

	_, err = u.PredictOnly(context.Background(), patient.CategoryAMD, "P1_LEFT_fundus.jpg", []byte("img"))
	if appCode(t, err) != "VALIDATION_ERROR" {
		t.Fatalf("err = %v", err)
	}

	_, err = u.PredictOnly(context.Background(), patient.CategoryDR, "bad-name.jpg", []byte("img"))
	if appCode(t, err) != "INVALID_FILENAME_FORMAT" {
		t.Fatalf("err = %v", err)
	}
}

func TestUploadAttachment(t *testing.T) {
	u, _, _ := fixtureUploader(t)

	url, err := u.UploadAttachment(context.Background(), "P1", UploadFile{
		Name: "oct-result.png", ContentType: "image/png", Data: []byte("scan"),
	})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if url == "" {
		t.Fatal("expected url")
	}

	_, err = u.UploadAttachment(context.Background(), "P1", UploadFile{
		Name: "report.pdf", ContentType: "application/pdf", Data: []byte("pdf"),
	})
	if appCode(t, err) != "VALIDATION_ERROR" {
		t.Fatalf("err = %v", err)
	}
}
