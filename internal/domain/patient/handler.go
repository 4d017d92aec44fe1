package patient

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/oculoflow/oculoflow/internal/platform/auth"
	"github.com/oculoflow/oculoflow/pkg/apperror"
	"github.com/oculoflow/oculoflow/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "doctor", "nurse"))
	readGroup.GET("/patients", h.ListPatients)
	readGroup.GET("/patients/:ref", h.GetPatient)
	readGroup.GET("/patients/:ref/medical-history", h.GetMedicalHistory)

	writeGroup := api.Group("", auth.RequireRole("admin", "doctor", "nurse"))
	writeGroup.POST("/patients", h.RegisterPatient)
	writeGroup.PUT("/patients/:ref", h.UpdatePatient)
	writeGroup.POST("/patients/:ref/medical-history", h.AddMedicalHistory)
	writeGroup.PUT("/patients/:ref/medical-history/:id", h.UpdateMedicalHistory)
	writeGroup.DELETE("/patients/:ref/medical-history/:id", h.DeleteMedicalHistory)
	writeGroup.PUT("/patients/:ref/mark-review", h.MarkForReview)

	adminGroup := api.Group("", auth.RequireRole("admin"))
	adminGroup.DELETE("/patients/:ref", h.DeletePatient)
}

func (h *Handler) RegisterPatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return apperror.Invalid("VALIDATION_ERROR", err.Error())
	}
	if err := h.svc.RegisterPatient(c.Request().Context(), &p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := SearchParams{
		Query:    c.QueryParam("q"),
		Status:   c.QueryParam("status"),
		Category: c.QueryParam("category"),
	}

	patients, total, err := h.svc.ListPatients(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var in Patient
	if err := c.Bind(&in); err != nil {
		return apperror.Invalid("VALIDATION_ERROR", err.Error())
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), c.Param("ref"), &in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	if err := h.svc.DeletePatient(c.Request().Context(), c.Param("ref")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) MarkForReview(c echo.Context) error {
	p, err := h.svc.MarkForReview(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) AddMedicalHistory(c echo.Context) error {
	var entry MedicalHistoryEntry
	if err := c.Bind(&entry); err != nil {
		return apperror.Invalid("VALIDATION_ERROR", err.Error())
	}
	if err := h.svc.AddMedicalHistory(c.Request().Context(), c.Param("ref"), &entry); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) GetMedicalHistory(c echo.Context) error {
	entries, err := h.svc.GetMedicalHistory(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) UpdateMedicalHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.Invalid("VALIDATION_ERROR", "invalid id")
	}
	var entry MedicalHistoryEntry
	if err := c.Bind(&entry); err != nil {
		return apperror.Invalid("VALIDATION_ERROR", err.Error())
	}
	if err := h.svc.UpdateMedicalHistory(c.Request().Context(), c.Param("ref"), id, &entry); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) DeleteMedicalHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.Invalid("VALIDATION_ERROR", "invalid id")
	}
	if err := h.svc.DeleteMedicalHistory(c.Request().Context(), c.Param("ref"), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
