package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/rentedmail/wallet-ledger-service/internal/ledger"
	"github.com/rentedmail/wallet-ledger-service/internal/models"
)

// Server is the thin HTTP layer over the ledger engine. Amounts cross
// the wire as decimal strings ("12.34") and are converted to minor
// units at this boundary; the engine never sees a float.
type Server struct {
	engine *ledger.Engine
	logger *slog.Logger
}

func New(engine *ledger.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, logger: logger}
}

// Register mounts all routes on the fiber app.
func (s *Server) Register(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/v1")
	api.Post("/accounts", s.createAccount)
	api.Get("/accounts/:id/balance", s.getBalance)
	api.Post("/accounts/:id/credit", s.credit)
	api.Post("/accounts/:id/debit", s.debit)
	api.Post("/transfers", s.transfer)
	api.Get("/accounts/:id/transactions", s.listTransactions)
	api.Get("/transactions/:id", s.getTransaction)
}

type createAccountRequest struct {
	InitialBalance string `json:"initial_balance"`
}

func (s *Server) createAccount(c *fiber.Ctx) error {
	var req createAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	balance := int64(0)
	if req.InitialBalance != "" {
		var err error
		balance, err = models.ParseAmount(req.InitialBalance)
		if err != nil {
			return badRequest(c, "invalid initial_balance")
		}
	}

	account, err := s.engine.CreateAccountRecord(c.Context(), balance)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(account)
}

func (s *Server) getBalance(c *fiber.Ctx) error {
	accountID, err := models.ParseAccountID(c.Params("id"))
	if err != nil {
		return s.renderError(c, err)
	}

	info, err := s.engine.GetBalance(c.Context(), accountID)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(fiber.Map{
		"account_id":   info.AccountID,
		"balance":      models.FormatAmount(info.Balance),
		"last_updated": info.LastUpdated,
	})
}

type adjustRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

func (s *Server) credit(c *fiber.Ctx) error {
	return s.adjust(c, s.engine.Credit)
}

func (s *Server) debit(c *fiber.Ctx) error {
	return s.adjust(c, s.engine.Debit)
}

func (s *Server) adjust(c *fiber.Ctx, op func(ctx context.Context, accountID uuid.UUID, amount int64, description, idempotencyKey string) (*models.TransactionRecord, error)) error {
	accountID, err := models.ParseAccountID(c.Params("id"))
	if err != nil {
		return s.renderError(c, err)
	}
	var req adjustRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	amount, err := models.ParseAmount(req.Amount)
	if err != nil {
		return badRequest(c, "invalid amount")
	}

	record, err := op(c.Context(), accountID, amount, req.Description, c.Get("Idempotency-Key"))
	if err != nil {
		return s.renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(record)
}

type transferRequest struct {
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

func (s *Server) transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	senderID, err := models.ParseAccountID(req.SenderID)
	if err != nil {
		return s.renderError(c, err)
	}
	recipientID, err := models.ParseAccountID(req.RecipientID)
	if err != nil {
		return s.renderError(c, err)
	}
	amount, err := models.ParseAmount(req.Amount)
	if err != nil {
		return badRequest(c, "invalid amount")
	}

	result, err := s.engine.Transfer(c.Context(), senderID, recipientID, amount, req.Description, c.Get("Idempotency-Key"))
	if err != nil {
		return s.renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (s *Server) listTransactions(c *fiber.Ctx) error {
	accountID, err := models.ParseAccountID(c.Params("id"))
	if err != nil {
		return s.renderError(c, err)
	}
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 10)

	pageResult, err := s.engine.ListTransactions(c.Context(), accountID, page, limit)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(pageResult)
}

func (s *Server) getTransaction(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid transaction id")
	}

	record, err := s.engine.GetTransaction(c.Context(), id)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(record)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// renderError maps domain errors to HTTP statuses. Everything the
// taxonomy names keeps a stable shape so clients can branch on it.
func (s *Server) renderError(c *fiber.Ctx, err error) error {
	var insufficient *models.InsufficientFundsError
	if errors.As(err, &insufficient) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":           "insufficient funds",
			"current_balance": models.FormatAmount(insufficient.Current),
			"required_amount": models.FormatAmount(insufficient.Requested),
			"account_id":      insufficient.AccountID,
		})
	}

	switch {
	case errors.Is(err, models.ErrAccountNotFound), errors.Is(err, models.ErrTransactionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrSelfTransfer),
		errors.Is(err, models.ErrInvalidAccountID):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, models.ErrIdempotencyInProgress):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, models.ErrIdempotencyKeyReuse):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, models.ErrRetryExhausted):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, models.ErrTimeout):
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": err.Error()})
	default:
		s.logger.Error("unhandled error", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal storage error"})
	}
}
