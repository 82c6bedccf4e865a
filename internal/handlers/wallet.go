package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/markjakearzadon/walletpay-gobackend.git/internal/models"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/services"
)

type WalletHandler struct {
	service *services.WalletService
}

func NewWalletHandler(service *services.WalletService) *WalletHandler {
	return &WalletHandler{service: service}
}

func (h *WalletHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		Passcode string `json:"passcode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, `{"error":"user_id is required"}`, http.StatusBadRequest)
		return
	}

	wallet, err := h.service.CreateWallet(r.Context(), req.UserID, req.Passcode)
	if err != nil {
		log.Printf("Failed to create wallet: %v", err)
		switch {
		case errors.Is(err, services.ErrValidation):
			http.Error(w, fmt.Sprintf(`{"error":"%v"}`, err), http.StatusBadRequest)
		case errors.Is(err, services.ErrUserNotFound):
			http.Error(w, `{"error":"user not found"}`, http.StatusNotFound)
		default:
			http.Error(w, fmt.Sprintf(`{"error":"Failed to create wallet: %v"}`, err), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(wallet); err != nil {
		log.Printf("Failed to encode wallet: %v", err)
		http.Error(w, `{"error":"Failed to encode response"}`, http.StatusInternalServerError)
	}
}

func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	walletID := vars["walletID"]
	if walletID == "" {
		http.Error(w, `{"error":"Wallet ID is required"}`, http.StatusBadRequest)
		return
	}

	wallet, err := h.service.GetWallet(r.Context(), walletID)
	if err != nil {
		log.Printf("Failed to get wallet %s: %v", walletID, err)
		if errors.Is(err, services.ErrWalletNotFound) {
			http.Error(w, `{"error":"wallet not found"}`, http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf(`{"error":"Failed to fetch wallet: %v"}`, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(wallet); err != nil {
		log.Printf("Failed to encode wallet: %v", err)
		http.Error(w, `{"error":"Failed to encode response"}`, http.StatusInternalServerError)
	}
}

// RequestTransaction accepts a credit/withdraw/transfer request. The
// response carries only the transaction id; the caller completes the saga
// by verifying the OTP sent to the wallet owner's email.
func (h *WalletHandler) RequestTransaction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	walletID := vars["walletID"]
	if walletID == "" {
		http.Error(w, `{"error":"Wallet ID is required"}`, http.StatusBadRequest)
		return
	}

	var req struct {
		UserID           string  `json:"user_id"`
		ReceiverWalletID string  `json:"receiver_wallet_id"`
		Amount           float64 `json:"amount"`
		TransactionType  string  `json:"transaction_type"`
		Remarks          string  `json:"remarks"`
		Passcode         string  `json:"passcode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, `{"error":"Amount must be positive"}`, http.StatusBadRequest)
		return
	}

	transactionID, err := h.service.RequestTransaction(r.Context(), services.TransactionRequest{
		UserID:           req.UserID,
		WalletID:         walletID,
		ReceiverWalletID: req.ReceiverWalletID,
		Amount:           req.Amount,
		Type:             models.TransactionType(req.TransactionType),
		Remarks:          req.Remarks,
		Passcode:         req.Passcode,
	})
	if err != nil {
		log.Printf("Failed to request transaction on wallet %s: %v", walletID, err)
		switch {
		case errors.Is(err, services.ErrValidation):
			http.Error(w, fmt.Sprintf(`{"error":"%v"}`, err), http.StatusBadRequest)
		case errors.Is(err, services.ErrWalletNotFound):
			http.Error(w, `{"error":"wallet not found"}`, http.StatusNotFound)
		case errors.Is(err, services.ErrUserNotFound):
			http.Error(w, `{"error":"user not found"}`, http.StatusNotFound)
		case errors.Is(err, services.ErrNotWalletOwner):
			http.Error(w, `{"error":"wallet does not belong to user"}`, http.StatusForbidden)
		case errors.Is(err, services.ErrInvalidPasscode):
			http.Error(w, `{"error":"invalid passcode"}`, http.StatusUnauthorized)
		case errors.Is(err, services.ErrInsufficientBalance):
			http.Error(w, `{"error":"insufficient balance"}`, http.StatusBadRequest)
		default:
			http.Error(w, fmt.Sprintf(`{"error":"Failed to request transaction: %v"}`, err), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]string{"transaction_id": transactionID}); err != nil {
		log.Printf("Failed to encode transaction id: %v", err)
		http.Error(w, `{"error":"Failed to encode response"}`, http.StatusInternalServerError)
	}
}
