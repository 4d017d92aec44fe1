package reporting

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/oculoflow/oculoflow/internal/platform/auth"
)

// MeasureDefinition defines a reporting measure with its SQL query.
type MeasureDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SQL         string   `json:"sql"`
	Parameters  []string `json:"parameters"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
	Parameters  map[string]string        `json:"parameters,omitempty"`
}

// PredefinedMeasures is the list of available dashboard measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "patients-by-status",
		Name:        "Patients by Status",
		Description: "Number of patients in each monitoring stage",
		SQL:         `SELECT status, COUNT(*) AS total FROM patient GROUP BY status ORDER BY total DESC`,
		Parameters:  []string{},
	},
	{
		ID:          "patients-by-category",
		Name:        "Patients by Disease Category",
		Description: "Number of patients tagged with each disease category",
		SQL:         `SELECT category, COUNT(*) AS total FROM patient, UNNEST(categories) AS category GROUP BY category ORDER BY total DESC`,
		Parameters:  []string{},
	},
	{
		ID:          "diagnoses-by-status",
		Name:        "Diagnoses by Status",
		Description: "Number of diagnosis entries in each lifecycle stage",
		SQL:         `SELECT status, COUNT(*) AS total FROM diagnosis GROUP BY status ORDER BY total DESC`,
		Parameters:  []string{},
	},
	{
		ID:          "pending-tests",
		Name:        "Pending Tests",
		Description: "Recommended tests not yet completed or reviewed, grouped by test name",
		SQL:         `SELECT test_name, COUNT(*) AS total FROM diagnosis_test WHERE status NOT IN ('Completed', 'Reviewed') GROUP BY test_name ORDER BY total DESC`,
		Parameters:  []string{},
	},
	{
		ID:          "uploads-last-30-days",
		Name:        "Uploads Last 30 Days",
		Description: "Diagnosis images uploaded per day over the last 30 days",
		SQL:         `SELECT DATE(uploaded_at) AS day, COUNT(*) AS total FROM diagnosis WHERE uploaded_at > NOW() - INTERVAL '30 days' GROUP BY day ORDER BY day`,
		Parameters:  []string{},
	},
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	pool *pgxpool.Pool
}

// NewHandler creates a new reporting handler.
func NewHandler(pool *pgxpool.Pool) *Handler {
	return &Handler{pool: pool}
}

// RegisterRoutes registers the reporting API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports", auth.RequireRole("admin", "doctor"))
	reportGroup.GET("/measures", h.ListMeasures)
	reportGroup.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure executes a measure's SQL and returns the results.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	params := map[string]string{}
	for _, p := range measure.Parameters {
		if v := c.QueryParam(p); v != "" {
			params[p] = v
		}
	}

	results, err := h.executeSQL(c.Request().Context(), measure.SQL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
	}

	return c.JSON(http.StatusOK, MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: time.Now(),
		Results:     results,
		Parameters:  params,
	})
}

// executeSQL runs a SQL query and returns results as a slice of maps.
func (h *Handler) executeSQL(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	rows, err := h.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	var results []map[string]interface{}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[string(fd.Name)] = values[i]
		}
		results = append(results, row)
	}

	if results == nil {
		results = []map[string]interface{}{}
	}

	return results, nil
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}
