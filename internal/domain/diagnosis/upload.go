package diagnosis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/oculoflow/oculoflow/internal/platform/blobstore"
	"github.com/oculoflow/oculoflow/internal/platform/prediction"
	"github.com/oculoflow/oculoflow/pkg/apperror"
)

// Predictor is the slice of the prediction client the upload flow needs.
type Predictor interface {
	Supports(category string) bool
	Predict(ctx context.Context, category, fileName string, image io.Reader) (*prediction.Result, error)
}

// Uploader runs the multi-image save flow: validate filename, store the
// image, dispatch it to the category's model, create the diagnosis entry.
type Uploader struct {
	svc       *Service
	blobs     blobstore.BlobStore
	predictor Predictor
}

func NewUploader(svc *Service, blobs blobstore.BlobStore, predictor Predictor) *Uploader {
	return &Uploader{svc: svc, blobs: blobs, predictor: predictor}
}

// UploadFile is one image in a batch.
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadResult reports the outcome for one file. A batch stops at the first
// storage or prediction failure; files after it come back as "aborted".
// Already-created entries are not rolled back.
type UploadResult struct {
	FileName string `json:"file_name"`
	Status   string `json:"status"` // created | failed | aborted
	Error    string `json:"error,omitempty"`
	Entry    *Entry `json:"entry,omitempty"`
}

// UploadBatch processes the files in order. Filename violations fail only the
// offending file; a DependencyFailure (blob store or model server) aborts the
// rest of the batch.
func (u *Uploader) UploadBatch(ctx context.Context, category string, files []UploadFile) ([]UploadResult, error) {
	if len(files) == 0 {
		return nil, apperror.Invalid("VALIDATION_ERROR", "at least one file is required")
	}

	results := make([]UploadResult, 0, len(files))
	aborted := false
	for _, f := range files {
		if aborted {
			results = append(results, UploadResult{FileName: f.Name, Status: "aborted"})
			continue
		}

		entry, err := u.uploadOne(ctx, category, f)
		if err != nil {
			var appErr *apperror.Error
			res := UploadResult{FileName: f.Name, Status: "failed", Error: err.Error()}
			if errors.As(err, &appErr) {
				res.Error = appErr.Message
				if appErr.Code == "DEPENDENCY_FAILURE" {
					aborted = true
				}
			}
			results = append(results, res)
			continue
		}
		results = append(results, UploadResult{FileName: f.Name, Status: "created", Entry: entry})
	}
	return results, nil
}

func (u *Uploader) uploadOne(ctx context.Context, category string, f UploadFile) (*Entry, error) {
	ref, _, err := ParseFilename(f.Name)
	if err != nil {
		return nil, apperror.Invalid("INVALID_FILENAME_FORMAT", err.Error())
	}

	meta, err := u.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    f.Name,
		ContentType: f.ContentType,
		PatientRef:  ref,
	}, bytes.NewReader(f.Data))
	if err != nil {
		if errors.Is(err, blobstore.ErrInvalidContentType) || errors.Is(err, blobstore.ErrFileTooLarge) {
			return nil, apperror.Invalid("VALIDATION_ERROR", err.Error())
		}
		return nil, apperror.Dependency("DEPENDENCY_FAILURE", "storing image failed", err)
	}

	cmd := CreateCommand{
		FileName: f.Name,
		ImageURL: meta.URL,
		Category: category,
	}
	if u.predictor != nil && u.predictor.Supports(category) {
		res, err := u.predictor.Predict(ctx, category, f.Name, bytes.NewReader(f.Data))
		if err != nil {
			return nil, apperror.Dependency("DEPENDENCY_FAILURE", "prediction failed: "+err.Error(), err)
		}
		cmd.Label = res.Label
		cmd.ConfidenceScores = orderedScores(res.Confidences, res.Label)
	}

	entry, err := u.svc.Create(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// PredictOnly classifies a single image without persisting anything, for the
// pre-upload preview.
func (u *Uploader) PredictOnly(ctx context.Context, category, fileName string, data []byte) (*prediction.Result, error) {
	if _, _, err := ParseFilename(fileName); err != nil {
		return nil, apperror.Invalid("INVALID_FILENAME_FORMAT", err.Error())
	}
	if u.predictor == nil || !u.predictor.Supports(category) {
		return nil, apperror.Invalid("VALIDATION_ERROR", fmt.Sprintf("no model configured for category %q", category))
	}

	res, err := u.predictor.Predict(ctx, category, fileName, bytes.NewReader(data))
	if err != nil {
		return nil, apperror.Dependency("DEPENDENCY_FAILURE", "prediction failed: "+err.Error(), err)
	}
	return res, nil
}

// UploadAttachment stores a test-result file and records its URL on the test.
func (u *Uploader) UploadAttachment(ctx context.Context, ref string, f UploadFile) (string, error) {
	meta, err := u.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    f.Name,
		ContentType: f.ContentType,
		PatientRef:  ref,
	}, bytes.NewReader(f.Data))
	if err != nil {
		if errors.Is(err, blobstore.ErrInvalidContentType) || errors.Is(err, blobstore.ErrFileTooLarge) ||
			errors.Is(err, blobstore.ErrMissingFileName) {
			return "", apperror.Invalid("VALIDATION_ERROR", err.Error())
		}
		return "", apperror.Dependency("DEPENDENCY_FAILURE", "storing attachment failed", err)
	}

	log.Debug().Str("patient_ref", ref).Str("file", f.Name).Msg("attachment stored")
	return meta.URL, nil
}

// orderedScores flattens the model's confidence map into a list with the
// winning label's score first and the rest in class-name order.
func orderedScores(confidences map[string]float64, label string) []float64 {
	if len(confidences) == 0 {
		return nil
	}
	rest := make([]string, 0, len(confidences))
	for k := range confidences {
		if k != label {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)

	out := make([]float64, 0, len(confidences))
	if v, ok := confidences[label]; ok {
		out = append(out, v)
	}
	for _, k := range rest {
		out = append(out, confidences[k])
	}
	return out
}
