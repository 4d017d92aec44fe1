package diagnosis

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/oculoflow/oculoflow/internal/platform/auth"
	"github.com/oculoflow/oculoflow/pkg/apperror"
)

type Handler struct {
	svc      *Service
	uploader *Uploader
}

func NewHandler(svc *Service, uploader *Uploader) *Handler {
	return &Handler{svc: svc, uploader: uploader}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "doctor", "nurse"))
	readGroup.GET("/diagnoses/:ref", h.ListForPatient)
	readGroup.GET("/diagnoses/:ref/:diagnosisId", h.GetDiagnosis)

	uploadGroup := api.Group("", auth.RequireRole("admin", "doctor", "nurse"))
	uploadGroup.POST("/diagnoses/upload", h.UploadBatch)
	uploadGroup.POST("/diagnoses/predict", h.PredictOnly)
	uploadGroup.POST("/diagnoses/:ref/:diagnosisId/tests/:testId/attachment", h.UploadAttachment)

	// Recommendations, reviews and completion are clinician decisions.
	doctorGroup := api.Group("", auth.RequireRole("admin", "doctor"))
	doctorGroup.PUT("/diagnoses/:ref/:diagnosisId/recommendations", h.RecordRecommendation)
	doctorGroup.PUT("/diagnoses/:ref/:diagnosisId/review", h.RecordReview)
	doctorGroup.PUT("/diagnoses/:ref/:diagnosisId/complete", h.Complete)

	nurseGroup := api.Group("", auth.RequireRole("admin", "doctor", "nurse"))
	nurseGroup.PUT("/diagnoses/:ref/:diagnosisId/tests/:testId/status", h.UpdateTestStatus)

	adminGroup := api.Group("", auth.RequireRole("admin"))
	adminGroup.DELETE("/diagnoses/:ref/:diagnosisId", h.DeleteDiagnosis)
}

func diagnosisID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("diagnosisId"))
	if err != nil {
		return uuid.Nil, apperror.Invalid("VALIDATION_ERROR", "invalid diagnosis id")
	}
	return id, nil
}

func (h *Handler) ListForPatient(c echo.Context) error {
	entries, err := h.svc.ListForPatient(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) GetDiagnosis(c echo.Context) error {
	id, err := diagnosisID(c)
	if err != nil {
		return err
	}
	e, err := h.svc.Get(c.Request().Context(), c.Param("ref"), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) RecordRecommendation(c echo.Context) error {
	id, err := diagnosisID(c)
	if err != nil {
		return err
	}
	var cmd RecommendCommand
	if err := c.Bind(&cmd); err != nil {
		return apperror.Invalid("VALIDATION_ERROR", err.Error())
	}
	e, err := h.svc.RecordRecommendation(c.Request().Context(), c.Param("ref"), id, cmd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) RecordReview(c echo.Context) error {
	id, err := diagnosisID(c)
	if err != nil {
		return err
	}
	var cmd ReviewCommand
	if err := c.Bind(&cmd); err != nil {
		return apperror.Invalid("VALIDATION_ERROR", err.Error())
	}
	e, err := h.svc.RecordReview(c.Request().Context(), c.Param("ref"), id, cmd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) UpdateTestStatus(c echo.Context) error {
	id, err := diagnosisID(c)
	if err != nil {
		return err
	}
	testID, err := uuid.Parse(c.Param("testId"))
	if err != nil {
		return apperror.Invalid("VALIDATION_ERROR", "invalid test id")
	}
	var cmd TestStatusCommand
	if err := c.Bind(&cmd); err != nil {
		return apperror.Invalid("VALIDATION_ERROR", err.Error())
	}
	t, err := h.svc.UpdateTestStatus(c.Request().Context(), c.Param("ref"), id, testID, cmd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := diagnosisID(c)
	if err != nil {
		return err
	}
	e, err := h.svc.Complete(c.Request().Context(), c.Param("ref"), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) DeleteDiagnosis(c echo.Context) error {
	id, err := diagnosisID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), c.Param("ref"), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// UploadBatch accepts a multipart form: a "category" field plus one or more
// "files" parts named <patientRef>_<LEFT|RIGHT>_<name>.<ext>.
func (h *Handler) UploadBatch(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return apperror.Invalid("VALIDATION_ERROR", "multipart form required")
	}
	category := c.FormValue("category")

	files, err := readParts(form.File["files"])
	if err != nil {
		return err
	}

	results, err := h.uploader.UploadBatch(c.Request().Context(), category, files)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusMultiStatus, results)
}

// PredictOnly classifies one image without saving it.
func (h *Handler) PredictOnly(c echo.Context) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return apperror.Invalid("VALIDATION_ERROR", "image file is required")
	}
	files, err := readParts([]*multipart.FileHeader{fh})
	if err != nil {
		return err
	}

	res, err := h.uploader.PredictOnly(c.Request().Context(), c.FormValue("category"), files[0].Name, files[0].Data)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// UploadAttachment stores a test-result file and marks it on the test via
// UpdateTestStatus semantics (attachment plus optional status in one call).
func (h *Handler) UploadAttachment(c echo.Context) error {
	id, err := diagnosisID(c)
	if err != nil {
		return err
	}
	testID, err := uuid.Parse(c.Param("testId"))
	if err != nil {
		return apperror.Invalid("VALIDATION_ERROR", "invalid test id")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apperror.Invalid("VALIDATION_ERROR", "file is required")
	}
	files, err := readParts([]*multipart.FileHeader{fh})
	if err != nil {
		return err
	}

	ref := c.Param("ref")
	url, err := h.uploader.UploadAttachment(c.Request().Context(), ref, files[0])
	if err != nil {
		return err
	}

	status := c.FormValue("status")
	if status == "" {
		status = TestInProgress
	}
	t, err := h.svc.UpdateTestStatus(c.Request().Context(), ref, id, testID, TestStatusCommand{
		Status:        status,
		AttachmentURL: url,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// readParts buffers multipart file parts into UploadFiles.
func readParts(headers []*multipart.FileHeader) ([]UploadFile, error) {
	out := make([]UploadFile, 0, len(headers))
	for _, fh := range headers {
		src, err := fh.Open()
		if err != nil {
			return nil, apperror.Invalid("VALIDATION_ERROR", "reading "+fh.Filename+": "+err.Error())
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return nil, apperror.Invalid("VALIDATION_ERROR", "reading "+fh.Filename+": "+err.Error())
		}
		out = append(out, UploadFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return out, nil
}
