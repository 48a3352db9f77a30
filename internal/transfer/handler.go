package transfer

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/wallet"
)

// Handler exposes the orchestrator over HTTP.
type Handler struct {
	service *Service
}

// NewHandler constructs a wallet handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type openRequest struct {
	AccountNumber int64 `json:"account_number"`
}

type movementRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Version string          `json:"version"`
}

type transferRequest struct {
	SourceAccount      int64           `json:"source_account"`
	DestinationAccount int64           `json:"destination_account"`
	Amount             decimal.Decimal `json:"amount"`
	Version            string          `json:"version"`
}

type walletResponse struct {
	AccountNumber int64     `json:"account_number"`
	Balance       string    `json:"balance"`
	Version       string    `json:"version"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type entryResponse struct {
	ID               int64     `json:"id"`
	AccountNumber    int64     `json:"account_number"`
	Timestamp        time.Time `json:"timestamp"`
	Kind             string    `json:"kind"`
	Credit           *string   `json:"credit"`
	Debit            *string   `json:"debit"`
	ResultingBalance string    `json:"resulting_balance"`
	PairedEntry      *int64    `json:"paired_entry,omitempty"`
}

// Open creates a wallet for a newly opened account.
func (h *Handler) Open(c *fiber.Ctx) error {
	var req openRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.OpenWallet(c.UserContext(), req.AccountNumber)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(toWallet(w))
}

// Balance returns the balance and version of a wallet.
func (h *Handler) Balance(c *fiber.Ctx) error {
	account, err := accountParam(c)
	if err != nil {
		return err
	}
	w, err := h.service.Balance(c.UserContext(), account)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(toWallet(w))
}

// History lists the entries of a wallet, oldest first.
func (h *Handler) History(c *fiber.Ctx) error {
	account, err := accountParam(c)
	if err != nil {
		return err
	}
	entries, err := h.service.History(c.UserContext(), account)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"account_number": account, "entries": toEntries(entries)})
}

// Statement returns balance, version and history from one snapshot.
func (h *Handler) Statement(c *fiber.Ctx) error {
	account, err := accountParam(c)
	if err != nil {
		return err
	}
	st, err := h.service.Statement(c.UserContext(), account)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"wallet": toWallet(st.Wallet), "entries": toEntries(st.Entries)})
}

// Reconcile compares the wallet balance with its ledger.
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	account, err := accountParam(c)
	if err != nil {
		return err
	}
	r, err := h.service.Reconcile(c.UserContext(), account)
	if err != nil {
		return respondError(c, err)
	}
	var last *string
	if r.LastResulting.Valid {
		s := r.LastResulting.Decimal.StringFixed(amountScale)
		last = &s
	}
	return c.JSON(fiber.Map{
		"account_number":         r.AccountNumber,
		"balance":                r.Balance.StringFixed(amountScale),
		"ledger_sum":             r.LedgerSum.StringFixed(amountScale),
		"last_resulting_balance": last,
		"entries":                r.Entries,
		"consistent":             r.Consistent,
	})
}

// Deposit credits a wallet.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	return h.movement(c, h.service.Deposit)
}

// Withdraw debits a wallet.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	return h.movement(c, h.service.Withdraw)
}

// Transfer moves funds between two wallets.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		SourceAccount:      req.SourceAccount,
		DestinationAccount: req.DestinationAccount,
		Amount:             req.Amount,
		Version:            wallet.Version(req.Version),
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"source":       toWallet(res.Source),
		"entry":        toEntry(res.OutEntry),
		"paired_entry": res.InEntryID,
		"completed_at": res.CompletedAt,
	})
}

func (h *Handler) movement(c *fiber.Ctx, op func(ctx context.Context, in MovementInput) (Receipt, error)) error {
	account, err := accountParam(c)
	if err != nil {
		return err
	}
	var req movementRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	receipt, err := op(c.UserContext(), MovementInput{
		AccountNumber: account,
		Amount:        req.Amount,
		Version:       wallet.Version(req.Version),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"wallet": toWallet(receipt.Wallet),
		"entry":  toEntry(receipt.Entry),
	})
}

// StatusOf maps an orchestrator failure to an HTTP status.
func StatusOf(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists, KindVersionConflict:
		return http.StatusConflict
	case KindInsufficientFunds, KindBalanceLimit:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

func respondError(c *fiber.Ctx, err error) error {
	message := ErrStorage.Error()
	var e *Error
	if errors.As(err, &e) {
		message = e.Detail
	}
	return c.Status(StatusOf(err)).JSON(fiber.Map{
		"error":   string(KindOf(err)),
		"message": message,
	})
}

func accountParam(c *fiber.Ctx) (int64, error) {
	account, err := strconv.ParseInt(c.Params("account"), 10, 64)
	if err != nil || account <= 0 {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid account number")
	}
	return account, nil
}

func toWallet(w wallet.Wallet) walletResponse {
	return walletResponse{
		AccountNumber: w.AccountNumber,
		Balance:       w.Balance.StringFixed(amountScale),
		Version:       w.Version.String(),
		UpdatedAt:     w.UpdatedAt,
	}
}

func toEntry(e ledger.Entry) entryResponse {
	out := entryResponse{
		ID:               e.ID,
		AccountNumber:    e.AccountNumber,
		Timestamp:        e.Timestamp,
		Kind:             string(e.Kind),
		ResultingBalance: e.ResultingBalance.StringFixed(amountScale),
		PairedEntry:      e.PairedEntry,
	}
	if e.Credit.Valid {
		s := e.Credit.Decimal.StringFixed(amountScale)
		out.Credit = &s
	}
	if e.Debit.Valid {
		s := e.Debit.Decimal.StringFixed(amountScale)
		out.Debit = &s
	}
	return out
}

func toEntries(entries []ledger.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntry(e))
	}
	return out
}
