package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-transactions/app/factory"
	"github.com/vibast-solutions/ms-go-transactions/app/mapper"
	"github.com/vibast-solutions/ms-go-transactions/app/service"
	"github.com/vibast-solutions/ms-go-transactions/app/types"
)

type TransactionController struct {
	transactionService *service.TransactionService
	logger             logrus.FieldLogger
}

func NewTransactionController(transactionService *service.TransactionService) *TransactionController {
	return &TransactionController{
		transactionService: transactionService,
		logger:             factory.NewModuleLogger("transactions-controller"),
	}
}

func (c *TransactionController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *TransactionController) InitiateTransaction(ctx echo.Context) error {
	req, err := types.NewInitiateTransactionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.transactionService.Initiate(ctx.Request().Context(), service.InitiateInput{
		OrderID:     req.GetOrderId(),
		Amount:      req.GetAmount(),
		Gate:        req.GetGate(),
		Type:        req.GetType(),
		Description: req.Description,
		Payer:       req.PayerIdentity(),
		IP:          req.Ip,
	})
	if err != nil {
		return c.writeServiceError(ctx, err, "Initiate transaction failed")
	}

	return ctx.JSON(http.StatusCreated, &types.InitiateTransactionResponse{
		Session:  mapper.SessionToProto(result.Session),
		Redirect: mapper.RedirectToProto(result.Redirect),
	})
}

func (c *TransactionController) GetTransaction(ctx echo.Context) error {
	req, err := types.NewGetSessionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.transactionService.GetSession(ctx.Request().Context(), req.GetId())
	if err != nil {
		return c.writeServiceError(ctx, err, "Get transaction failed")
	}

	return ctx.JSON(http.StatusOK, &types.SessionEnvelopeResponse{Session: mapper.SessionToProto(item)})
}

func (c *TransactionController) ListTransactions(ctx echo.Context) error {
	req, err := types.NewListSessionsRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.transactionService.ListSessions(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "List transactions failed")
	}

	return ctx.JSON(http.StatusOK, &types.ListSessionsResponse{Sessions: mapper.SessionsToProto(items)})
}

func (c *TransactionController) ListTransactionLogs(ctx echo.Context) error {
	req, err := types.NewGetSessionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.transactionService.ListSessionLogs(ctx.Request().Context(), req.GetId())
	if err != nil {
		return c.writeServiceError(ctx, err, "List transaction logs failed")
	}

	return ctx.JSON(http.StatusOK, &types.ListLogsResponse{Logs: mapper.LogsToProto(items)})
}

func (c *TransactionController) ListTransactionInquiries(ctx echo.Context) error {
	req, err := types.NewGetSessionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.transactionService.ListSessionInquiries(ctx.Request().Context(), req.GetId())
	if err != nil {
		return c.writeServiceError(ctx, err, "List transaction inquiries failed")
	}

	return ctx.JSON(http.StatusOK, &types.ListInquiriesResponse{Inquiries: mapper.InquiriesToProto(items)})
}

func (c *TransactionController) UpdateNote(ctx echo.Context) error {
	req, err := types.NewUpdateNoteRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.transactionService.UpdateNote(ctx.Request().Context(), req.GetId(), req.GetNote())
	if err != nil {
		return c.writeServiceError(ctx, err, "Update transaction note failed")
	}

	return ctx.JSON(http.StatusOK, &types.SessionEnvelopeResponse{Session: mapper.SessionToProto(item)})
}

func (c *TransactionController) ProcessInquiry(ctx echo.Context) error {
	req, err := types.NewProcessInquiryRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.transactionService.Inquire(ctx.Request().Context(), req.GetId())
	if err != nil {
		if errors.Is(err, service.ErrInquiryNotWaiting) {
			return c.writeError(ctx, http.StatusConflict, err.Error())
		}
		return c.writeServiceError(ctx, err, "Process inquiry failed")
	}

	return ctx.JSON(http.StatusOK, &types.InquiryEnvelopeResponse{Inquiry: mapper.InquiryToProto(item)})
}

// HandleCallback receives the bank's redirect or server-to-server callback.
// A replayed callback for a settled session answers 200 with the stored
// session.
func (c *TransactionController) HandleCallback(ctx echo.Context) error {
	req, err := types.NewVerifyTransactionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid callback body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.transactionService.Verify(ctx.Request().Context(), service.VerifyInput{
		Gate:          req.GetGate(),
		CallbackToken: req.GetToken(),
		Authority:     req.GetAuthority(),
		CallbackData:  req.Data,
		RawCallback:   []byte(req.Payload),
		Signature:     req.Signature,
		IP:            req.Ip,
	})
	if err != nil {
		if errors.Is(err, service.ErrAlreadyVerified) && item != nil {
			return ctx.JSON(http.StatusOK, &types.SessionEnvelopeResponse{Session: mapper.SessionToProto(item)})
		}
		return c.writeServiceError(ctx, err, "Handle gate callback failed")
	}

	return ctx.JSON(http.StatusOK, &types.SessionEnvelopeResponse{Session: mapper.SessionToProto(item)})
}

func (c *TransactionController) writeServiceError(ctx echo.Context, err error, message string) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrGateUnsupported),
		errors.Is(err, service.ErrInvalidCallback):
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSessionNotFound):
		return c.writeError(ctx, http.StatusNotFound, "transaction not found")
	case errors.Is(err, service.ErrInquiryNotFound):
		return c.writeError(ctx, http.StatusNotFound, "inquiry not found")
	case errors.Is(err, service.ErrAlreadyVerified):
		return c.writeError(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrVerificationInProgress):
		ctx.Response().Header().Set("Retry-After", "30")
		return c.writeError(ctx, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrAdapterUnavailable):
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Warn(message)
		return c.writeError(ctx, http.StatusBadGateway, "gate unavailable")
	default:
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(message)
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}

func (c *TransactionController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
