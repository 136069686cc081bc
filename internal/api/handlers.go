package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"cafe/internal/game"
)

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	out, err := s.game.Player(r.Context(), caller.UserID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Menu(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleMenuItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	out, err := s.game.MenuItem(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	fetch := s.game.Inventory
	if r.URL.Query().Get("in_stock") == "1" {
		fetch = s.game.InStock
	}
	out, err := fetch(r.Context(), caller.UserID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": out})
}

func (s *Server) handleRestock(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	var in struct {
		ProductID int64 `json:"item_id"`
		Quantity  int64 `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.Restock(r.Context(), game.RestockInput{
		UserID:         caller.UserID,
		ProductID:      in.ProductID,
		Quantity:       in.Quantity,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	var in struct {
		Items []game.LineInput `json:"items"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.CreateOrder(r.Context(), game.CreateOrderInput{
		UserID:         caller.UserID,
		Lines:          in.Items,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	status, err := game.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.ListOrders(r.Context(), caller.UserID, status, queryInt(r, "page", 1), queryInt(r, "per_page", game.DefaultPageSize))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	out, err := s.game.GetOrder(r.Context(), caller.UserID, id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCompleteOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	out, err := s.game.CompleteOrder(r.Context(), game.OrderActionInput{
		UserID:         caller.UserID,
		OrderID:        id,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	out, err := s.game.CancelOrder(r.Context(), game.OrderActionInput{
		UserID:         caller.UserID,
		OrderID:        id,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	out, err := s.game.History(r.Context(), caller.UserID, queryInt(r, "limit", 50))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	out, err := s.game.Progress(r.Context(), caller.UserID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	out, err := s.game.Stats(r.Context(), caller.UserID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminOrders(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	status, err := game.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.AdminListOrders(r.Context(), caller, status, queryInt(r, "page", 1), queryInt(r, "per_page", game.DefaultPageSize))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminPlayers(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	players, err := s.game.AdminPlayers(r.Context(), caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": players})
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	out, err := s.game.GlobalStats(r.Context(), caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminAddItem(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	var in struct {
		Name          string          `json:"name"`
		PurchasePrice decimal.Decimal `json:"purchase_price"`
		SellingPrice  decimal.Decimal `json:"selling_price"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.AddProduct(r.Context(), caller, game.AddProductInput{
		Name:          in.Name,
		PurchasePrice: in.PurchasePrice,
		SellingPrice:  in.SellingPrice,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}
