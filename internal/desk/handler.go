package desk

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/desk/internal/domain/documents"
	"github.com/ehr/desk/internal/domain/identity"
	"github.com/ehr/desk/internal/domain/patient"
	"github.com/ehr/desk/internal/domain/sheet"
	"github.com/ehr/desk/internal/platform/apiclient"
	"github.com/ehr/desk/internal/platform/validation"
	"github.com/ehr/desk/pkg/pagination"
)

type Handler struct {
	desk *Coordinator
}

func NewHandler(desk *Coordinator) *Handler {
	return &Handler{desk: desk}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/state", h.GetState)

	// Session gate
	g.POST("/auth/toggle", h.ToggleAuth)
	g.POST("/auth", h.SubmitAuth)
	g.POST("/logout", h.Logout)

	// Everything below needs an unlocked desk
	w := g.Group("", h.requireAuth)
	w.POST("/locate", h.Locate)
	w.POST("/intake", h.SubmitIntake)
	w.DELETE("/intake", h.CancelIntake)
	w.POST("/visits/refresh", h.RefreshVisits)

	w.PUT("/sheet", h.SelectSheet)
	w.POST("/sheet/next", h.NextSheet)
	w.POST("/sheet/previous", h.PreviousSheet)
	w.GET("/sheet", h.GetSheet)
	w.PATCH("/sheet/fields", h.SetSheetFields)
	w.POST("/sheet/new", h.NewSheetEntry)
	w.GET("/sheet/history", h.ListSheetHistory)
	w.POST("/sheet/history/:id", h.SelectSheetHistory)
	w.POST("/sheet/save", h.SaveSheet)

	w.POST("/documents/:visitId", h.OpenDocuments)
	w.DELETE("/documents", h.CloseDocuments)
	w.GET("/documents", h.ListDocuments)
	w.POST("/documents/upload", h.UploadDocument)
	w.GET("/documents/file/:id", h.FetchDocument)
}

func (h *Handler) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !h.desk.State().Authenticated {
			return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
		}
		return next(c)
	}
}

func (h *Handler) GetState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.desk.View())
}

// -- Session gate --

func (h *Handler) ToggleAuth(c echo.Context) error {
	return c.JSON(http.StatusOK, h.desk.ToggleAuthMode())
}

type authRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	DoctorNumber string `json:"doctor_number"`
	Password     string `json:"password"`
}

func (h *Handler) SubmitAuth(c echo.Context) error {
	var req authRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	form, ok := h.desk.SubmitAuth(c.Request().Context(), identity.Form{
		Name:         req.Name,
		Email:        req.Email,
		DoctorNumber: req.DoctorNumber,
		Password:     req.Password,
	})
	status := http.StatusOK
	if !ok && form.Message != identity.MsgRegistered {
		status = http.StatusUnauthorized
		if form.Mode == identity.ModeRegister {
			status = http.StatusBadRequest
		}
	}
	return c.JSON(status, form)
}

func (h *Handler) Logout(c echo.Context) error {
	h.desk.Logout(c.Request().Context())
	return c.JSON(http.StatusOK, h.desk.View())
}

// -- Patient --

func (h *Handler) Locate(c echo.Context) error {
	var q patient.SearchQuery
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.desk.Locate(c.Request().Context(), q); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, h.desk.View())
}

type intakeRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	BirthDate string `json:"birth_date"`
}

func (h *Handler) SubmitIntake(c echo.Context) error {
	var req intakeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.desk.SubmitIntake(c.Request().Context(), req.FirstName, req.LastName, req.BirthDate); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, h.desk.View())
}

func (h *Handler) CancelIntake(c echo.Context) error {
	h.desk.CancelIntake()
	return c.JSON(http.StatusOK, h.desk.View())
}

func (h *Handler) RefreshVisits(c echo.Context) error {
	h.desk.RefreshVisits(c.Request().Context())
	return c.JSON(http.StatusOK, h.desk.View().Ledger)
}

// -- Examination sheets --

type selectSheetRequest struct {
	Type string `json:"type"`
}

func (h *Handler) SelectSheet(c echo.Context) error {
	var req selectSheetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t, err := sheet.ParseType(req.Type)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.desk.SelectSheet(c.Request().Context(), t); err != nil {
		return httpError(err)
	}
	return h.GetSheet(c)
}

func (h *Handler) NextSheet(c echo.Context) error {
	h.desk.NextSheet(c.Request().Context())
	return h.GetSheet(c)
}

func (h *Handler) PreviousSheet(c echo.Context) error {
	h.desk.PreviousSheet(c.Request().Context())
	return h.GetSheet(c)
}

func (h *Handler) GetSheet(c echo.Context) error {
	ed, err := h.desk.Editor()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ed.View())
}

func (h *Handler) SetSheetFields(c echo.Context) error {
	var fields map[string]string
	if err := c.Bind(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	for k, v := range fields {
		if err := h.desk.SetSheetField(k, v); err != nil {
			if _, edErr := h.desk.Editor(); edErr != nil {
				return httpError(edErr)
			}
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return h.GetSheet(c)
}

func (h *Handler) NewSheetEntry(c echo.Context) error {
	if err := h.desk.NewSheetEntry(); err != nil {
		return httpError(err)
	}
	return h.GetSheet(c)
}

func (h *Handler) ListSheetHistory(c echo.Context) error {
	ed, err := h.desk.Editor()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(ed.View().History, pagination.FromContext(c)))
}

func (h *Handler) SelectSheetHistory(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	force, _ := strconv.ParseBool(c.QueryParam("force"))
	if err := h.desk.SelectSheetHistory(c.Request().Context(), id, force); err != nil {
		return httpError(err)
	}
	return h.GetSheet(c)
}

func (h *Handler) SaveSheet(c echo.Context) error {
	if _, err := h.desk.SaveSheet(c.Request().Context()); err != nil {
		return httpError(err)
	}
	return h.GetSheet(c)
}

// -- Documents --

func (h *Handler) OpenDocuments(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("visitId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	h.desk.OpenDocuments(c.Request().Context(), id)
	return c.JSON(http.StatusOK, h.desk.View())
}

func (h *Handler) CloseDocuments(c echo.Context) error {
	h.desk.CloseDocuments()
	return c.JSON(http.StatusOK, h.desk.View())
}

func (h *Handler) ListDocuments(c echo.Context) error {
	v := h.desk.View()
	if v.Documents == nil {
		return echo.NewHTTPError(http.StatusConflict, "document manager is not open")
	}
	return c.JSON(http.StatusOK, pagination.Page(v.Documents.Items, pagination.FromContext(c)))
}

func (h *Handler) UploadDocument(c echo.Context) error {
	u := documents.Upload{Description: c.FormValue("description")}
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		defer f.Close()
		u.FileName = fh.Filename
		u.Content = f
	}
	if _, err := h.desk.UploadDocument(c.Request().Context(), u); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, h.desk.View().Documents)
}

func (h *Handler) FetchDocument(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	// Headers go out before the fetch. The client buffers the whole file, so
	// nothing is written until it has arrived.
	v := h.desk.View()
	if v.Documents != nil {
		for _, d := range v.Documents.Items {
			if d.ID == id && d.FileType != "" {
				c.Response().Header().Set(echo.HeaderContentType, d.FileType)
			}
		}
	}
	if _, err := h.desk.FetchDocument(c.Request().Context(), id, c.Response()); err != nil {
		if c.Response().Committed {
			return nil
		}
		return httpError(err)
	}
	return nil
}

// httpError maps desk and API errors onto status codes. User-facing
// messages pass through verbatim.
func httpError(err error) error {
	var ue *validation.UserError
	switch {
	case errors.Is(err, ErrNoPatient), errors.Is(err, sheet.ErrUnsavedChanges), errors.Is(err, sheet.ErrSuperseded):
		return echo.NewHTTPError(http.StatusConflict, validation.Message(err, err.Error()))
	case errors.Is(err, ErrUnknownDocument), errors.Is(err, apiclient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, patient.ErrSessionExpired), errors.Is(err, apiclient.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, validation.Message(err, patient.MsgSessionExpired))
	case apiclient.IsTransport(err):
		return echo.NewHTTPError(http.StatusBadGateway, validation.Message(err, err.Error()))
	case errors.As(err, &ue):
		return echo.NewHTTPError(http.StatusBadRequest, ue.Message)
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return echo.NewHTTPError(http.StatusBadRequest, verrs[0].Message)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
