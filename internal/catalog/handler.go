package catalog

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"library-circulation/internal/circulation"
	"library-circulation/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/copies", h.ListCopies)
	r.POST("/copies", h.AddCopy)
	r.GET("/copies/labels.csv", h.ExportLabels)
	r.GET("/copies/:copy_id", h.GetCopy)
	r.GET("/books/:book_id/availability", h.Availability)
}

func callerFrom(c *gin.Context) circulation.Caller {
	id, role := auth.Principal(c)
	return circulation.Caller{ID: id, Role: role}
}

// GetCopy godoc
// @Summary  蔵書1冊
// @Tags     catalog
// @Produce  json
// @Param    copy_id path int true "蔵書ID"
// @Success  200 {object} CopyResponse
// @Security BearerAuth
// @Router   /copies/{copy_id} [get]
func (h *Handler) GetCopy(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("copy_id"), 10, 64)
	if err != nil {
		circulation.RespondInvalid(c, "invalid copy_id")
		return
	}
	res, err := h.svc.GetCopy(c.Request.Context(), id)
	if err != nil {
		circulation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListCopies godoc
// @Summary  蔵書一覧（book_id / library_id / status で絞り込み）
// @Tags     catalog
// @Produce  json
// @Success  200 {object} ListCopiesResult
// @Security BearerAuth
// @Router   /copies [get]
func (h *Handler) ListCopies(c *gin.Context) {
	f, ok := parseFilter(c)
	if !ok {
		return
	}
	p := Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}
	res, err := h.svc.ListCopies(c.Request.Context(), f, p)
	if err != nil {
		circulation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Availability godoc
// @Summary  書誌ごとの貸出可能冊数
// @Tags     catalog
// @Produce  json
// @Param    book_id path int true "書誌ID"
// @Param    library_id query int false "図書館ID"
// @Success  200 {object} AvailabilityResponse
// @Security BearerAuth
// @Router   /books/{book_id}/availability [get]
func (h *Handler) Availability(c *gin.Context) {
	bookID, err := strconv.ParseInt(c.Param("book_id"), 10, 64)
	if err != nil {
		circulation.RespondInvalid(c, "invalid book_id")
		return
	}
	var libraryID *int64
	if v := c.Query("library_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			circulation.RespondInvalid(c, "invalid library_id")
			return
		}
		libraryID = &id
	}
	res, err := h.svc.AvailableCount(c.Request.Context(), bookID, libraryID)
	if err != nil {
		circulation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// AddCopy godoc
// @Summary  蔵書の受け入れ（職員）
// @Tags     staff
// @Accept   json
// @Produce  json
// @Param    body body CreateCopyRequest true "蔵書"
// @Success  201 {object} CopyResponse
// @Security BearerAuth
// @Router   /copies [post]
func (h *Handler) AddCopy(c *gin.Context) {
	var req CreateCopyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		circulation.RespondInvalid(c, "invalid json")
		return
	}
	res, err := h.svc.AddCopy(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		circulation.RespondError(c, err)
		return
	}
	c.Header("Location", "/api/v1/copies/"+strconv.FormatInt(res.CopyID, 10))
	c.JSON(http.StatusCreated, res)
}

// ExportLabels godoc
// @Summary  ラベル印刷用 CSV（職員）
// @Tags     staff
// @Produce  text/csv
// @Param    encoding query string false "cp932 | utf-8 | utf-16le（既定 cp932）"
// @Security BearerAuth
// @Router   /copies/labels.csv [get]
func (h *Handler) ExportLabels(c *gin.Context) {
	f, ok := parseFilter(c)
	if !ok {
		return
	}
	body, contentType, err := h.svc.ExportLabels(c.Request.Context(), callerFrom(c), f, c.Query("encoding"))
	if err != nil {
		circulation.RespondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="labels.csv"`)
	c.Data(http.StatusOK, contentType, body)
}

// ---------- helpers ----------

func parseFilter(c *gin.Context) (Filter, bool) {
	var f Filter
	if v := c.Query("book_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			circulation.RespondInvalid(c, "invalid book_id")
			return Filter{}, false
		}
		f.BookID = &id
	}
	if v := c.Query("library_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			circulation.RespondInvalid(c, "invalid library_id")
			return Filter{}, false
		}
		f.LibraryID = &id
	}
	if v := c.Query("status"); v != "" {
		st := circulation.CopyStatus(v)
		if st != circulation.CopyAvailable && st != circulation.CopyBorrowed {
			circulation.RespondInvalid(c, "status must be available or borrowed")
			return Filter{}, false
		}
		f.Status = &st
	}
	return f, true
}

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
