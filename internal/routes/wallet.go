package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/transfer"
)

// RegisterWalletRoutes wires wallet and transfer endpoints.
func RegisterWalletRoutes(r fiber.Router, h *transfer.Handler) {
	r.Post("/wallets", h.Open)

	w := r.Group("/wallets/:account")
	w.Get("/balance", h.Balance)
	w.Get("/history", h.History)
	w.Get("/statement", h.Statement)
	w.Get("/reconcile", h.Reconcile)
	w.Post("/deposit", h.Deposit)
	w.Post("/withdraw", h.Withdraw)

	r.Post("/transfers", h.Transfer)
}
