package circulation

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"library-circulation/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	registerValidators()
	h := &Handler{svc: svc}

	// 貸出
	r.POST("/loans", h.Borrow)
	r.GET("/loans", h.ListMyLoans)
	r.GET("/loans/active", h.ListMyActiveLoans)
	r.GET("/loans/:loan_id", h.GetLoan)
	r.GET("/loans/:loan_id/penalty", h.GetPenalty)

	// 返却（明細単位）
	r.POST("/loans/:loan_id/returns", h.ReturnItems)

	// 職員向け
	r.GET("/patrons/:patron_id/loans", h.ListPatronLoans)
	r.GET("/patrons/:patron_id/loans/active", h.ListPatronActiveLoans)
	r.POST("/reminders/due-soon", h.SendDueSoon)
	r.POST("/reminders/overdue", h.SendOverdue)
}

var validatorsOnce sync.Once

func registerValidators() {
	validatorsOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("duedate", func(fl validator.FieldLevel) bool {
				_, err := ParseDueDate(fl.Field().String())
				return err == nil
			})
		}
	})
}

func callerFrom(c *gin.Context) Caller {
	id, role := auth.Principal(c)
	return Caller{ID: id, Role: role}
}

// ---------- handlers ----------

// Borrow godoc
// @Summary  複数冊をまとめて借りる
// @Tags     loans
// @Accept   json
// @Produce  json
// @Param    body body BorrowRequest true "copy_ids と返却期限"
// @Success  201 {object} LoanResponse
// @Failure  400 {object} errorDTO
// @Failure  404 {object} errorDTO
// @Failure  409 {object} errorDTO
// @Security BearerAuth
// @Router   /loans [post]
func (h *Handler) Borrow(c *gin.Context) {
	var req BorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json: "+err.Error()))
		return
	}
	due, err := ParseDueDate(req.DueDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, err.Error()))
		return
	}
	loan, err := h.svc.Borrow(c.Request.Context(), callerFrom(c).ID, req.CopyIDs, due)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.Header("Location", "/api/v1/loans/"+loan.ID)
	c.JSON(http.StatusCreated, toLoanResponse(loan, h.svc.Now()))
}

// ReturnItems godoc
// @Summary  明細単位で返却する（一部の明細が無ければ 404 と更新後の貸出）
// @Tags     loans
// @Accept   json
// @Produce  json
// @Param    loan_id path string true "貸出ID"
// @Param    body body ReturnRequest true "item_ids"
// @Success  200 {object} LoanResponse
// @Failure  400 {object} errorDTO
// @Failure  404 {object} partialReturnDTO
// @Security BearerAuth
// @Router   /loans/{loan_id}/returns [post]
func (h *Handler) ReturnItems(c *gin.Context) {
	var req ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}
	loan, err := h.svc.ReturnItems(c.Request.Context(), callerFrom(c), c.Param("loan_id"), req.ItemIDs)
	if err != nil {
		if loan != nil {
			// 一部だけ返却できた
			_ = c.Error(err)
			body := partialReturnDTO{errorDTO: errorFromErr(err), Loan: toLoanResponse(loan, h.svc.Now())}
			c.JSON(ToHTTPStatus(err), body)
			return
		}
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLoanResponse(loan, h.svc.Now()))
}

// GetLoan godoc
// @Summary  貸出を取得（延滞料・状態は再計算済み）
// @Tags     loans
// @Produce  json
// @Param    loan_id path string true "貸出ID"
// @Success  200 {object} LoanResponse
// @Failure  404 {object} errorDTO
// @Security BearerAuth
// @Router   /loans/{loan_id} [get]
func (h *Handler) GetLoan(c *gin.Context) {
	loan, err := h.svc.GetLoan(c.Request.Context(), callerFrom(c), c.Param("loan_id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLoanResponse(loan, h.svc.Now()))
}

// GetPenalty godoc
// @Summary  延滞料の合計
// @Tags     loans
// @Produce  json
// @Param    loan_id path string true "貸出ID"
// @Success  200 {object} PenaltyResponse
// @Security BearerAuth
// @Router   /loans/{loan_id}/penalty [get]
func (h *Handler) GetPenalty(c *gin.Context) {
	loanID := c.Param("loan_id")
	p, err := h.svc.GetPenalty(c.Request.Context(), callerFrom(c), loanID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, PenaltyResponse{LoanID: loanID, TotalPenalty: p.StringFixed(2)})
}

// ListMyActiveLoans godoc
// @Summary  自分の未返却の貸出
// @Tags     loans
// @Produce  json
// @Success  200 {object} ListLoansResponse
// @Security BearerAuth
// @Router   /loans/active [get]
func (h *Handler) ListMyActiveLoans(c *gin.Context) {
	caller := callerFrom(c)
	h.listActive(c, caller, caller.ID)
}

// ListPatronActiveLoans godoc
// @Summary  利用者の未返却の貸出（職員）
// @Tags     staff
// @Produce  json
// @Param    patron_id path string true "利用者ID"
// @Success  200 {object} ListLoansResponse
// @Failure  403 {object} errorDTO
// @Security BearerAuth
// @Router   /patrons/{patron_id}/loans/active [get]
func (h *Handler) ListPatronActiveLoans(c *gin.Context) {
	h.listActive(c, callerFrom(c), c.Param("patron_id"))
}

// ListMyLoans godoc
// @Summary  自分の貸出履歴（返却済みを含む）
// @Tags     loans
// @Produce  json
// @Success  200 {object} ListLoansResponse
// @Security BearerAuth
// @Router   /loans [get]
func (h *Handler) ListMyLoans(c *gin.Context) {
	caller := callerFrom(c)
	h.writeLoans(c, func() ([]*Loan, error) {
		return h.svc.ListLoanHistory(c.Request.Context(), caller, caller.ID)
	})
}

// ListPatronLoans godoc
// @Summary  利用者の貸出履歴（職員）
// @Tags     staff
// @Produce  json
// @Param    patron_id path string true "利用者ID"
// @Success  200 {object} ListLoansResponse
// @Failure  403 {object} errorDTO
// @Security BearerAuth
// @Router   /patrons/{patron_id}/loans [get]
func (h *Handler) ListPatronLoans(c *gin.Context) {
	h.writeLoans(c, func() ([]*Loan, error) {
		return h.svc.ListLoanHistory(c.Request.Context(), callerFrom(c), c.Param("patron_id"))
	})
}

func (h *Handler) listActive(c *gin.Context, caller Caller, patronID string) {
	h.writeLoans(c, func() ([]*Loan, error) {
		return h.svc.ListActiveLoans(c.Request.Context(), caller, patronID)
	})
}

func (h *Handler) writeLoans(c *gin.Context, list func() ([]*Loan, error)) {
	loans, err := list()
	if err != nil {
		RespondError(c, err)
		return
	}
	now := h.svc.Now()
	items := make([]LoanResponse, 0, len(loans))
	for _, l := range loans {
		items = append(items, toLoanResponse(l, now))
	}
	c.JSON(http.StatusOK, ListLoansResponse{Items: items, Total: len(items)})
}

// SendDueSoon godoc
// @Summary  返却期限が近い明細にリマインダーを出す（職員）
// @Tags     staff
// @Produce  json
// @Param    window_days query int false "何日先まで（既定 3）"
// @Success  200 {object} RemindersResponse
// @Failure  403 {object} errorDTO
// @Security BearerAuth
// @Router   /reminders/due-soon [post]
func (h *Handler) SendDueSoon(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("window_days", "3"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "window_days must be an integer"))
		return
	}
	rs, err := h.svc.FindDueSoon(c.Request.Context(), callerFrom(c), days)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, RemindersResponse{Items: rs, Total: len(rs)})
}

// SendOverdue godoc
// @Summary  延滞中の明細に通知を出す（職員）
// @Tags     staff
// @Produce  json
// @Success  200 {object} RemindersResponse
// @Failure  403 {object} errorDTO
// @Security BearerAuth
// @Router   /reminders/overdue [post]
func (h *Handler) SendOverdue(c *gin.Context) {
	rs, err := h.svc.FindOverdue(c.Request.Context(), callerFrom(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, RemindersResponse{Items: rs, Total: len(rs)})
}

// ---------- helpers ----------

// RespondError はエラーを応答し、アクセスログ用に c.Errors にも積む
func RespondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(ToHTTPStatus(err), errorFromErr(err))
}

type errorDTO struct {
	Error struct {
		Code    Code     `json:"code"`
		Message string   `json:"message"`
		IDs     []string `json:"ids,omitempty"`
	} `json:"error"`
}

type partialReturnDTO struct {
	errorDTO
	Loan LoanResponse `json:"loan"`
}

// RespondInvalid はリクエスト形式の誤り（400）
func RespondInvalid(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, msg))
}

func errorBody(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func errorFromErr(err error) errorDTO {
	var msg string
	var code Code = CodeInternal
	var ids []string
	if api, ok := asAPIError(err); ok {
		code, msg, ids = api.Code, api.Message, api.IDs
	} else {
		// 内部エラーの詳細は返さない
		msg = "internal error"
	}
	e := errorBody(code, msg)
	e.Error.IDs = ids
	return e
}
