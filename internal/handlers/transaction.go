package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/markjakearzadon/walletpay-gobackend.git/internal/services"
)

type TransactionHandler struct {
	service *services.TransactionService
}

func NewTransactionHandler(service *services.TransactionService) *TransactionHandler {
	return &TransactionHandler{service: service}
}

// VerifyOtp answers the OTP challenge for a pending transaction. A wrong
// code reports how many attempts remain; expiry and exhaustion are terminal
// for the transaction.
func (h *TransactionHandler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	transactionID := vars["transactionID"]
	if transactionID == "" {
		http.Error(w, `{"error":"Transaction ID is required"}`, http.StatusBadRequest)
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, `{"error":"code is required"}`, http.StatusBadRequest)
		return
	}

	res, err := h.service.VerifyOtp(r.Context(), transactionID, req.Code)
	if err != nil {
		log.Printf("OTP verification failed for transaction %s: %v", transactionID, err)
		switch {
		case errors.Is(err, services.ErrOtpIncorrect):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":              "incorrect otp",
				"remaining_attempts": res.RemainingAttempts,
			})
		case errors.Is(err, services.ErrOtpExpired):
			http.Error(w, `{"error":"otp expired"}`, http.StatusBadRequest)
		case errors.Is(err, services.ErrOtpAttemptsExceeded):
			http.Error(w, `{"error":"otp attempts exceeded"}`, http.StatusBadRequest)
		case errors.Is(err, services.ErrOtpNotFound), errors.Is(err, services.ErrTransactionNotFound):
			http.Error(w, `{"error":"no active otp challenge"}`, http.StatusNotFound)
		default:
			http.Error(w, fmt.Sprintf(`{"error":"Failed to verify otp: %v"}`, err), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"message": "OTP verified"}); err != nil {
		log.Printf("Failed to encode verification response: %v", err)
		http.Error(w, `{"error":"Failed to encode response"}`, http.StatusInternalServerError)
	}
}

// ResendOtp regenerates and re-mails the code for a transaction still
// waiting on verification.
func (h *TransactionHandler) ResendOtp(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	transactionID := vars["transactionID"]
	if transactionID == "" {
		http.Error(w, `{"error":"Transaction ID is required"}`, http.StatusBadRequest)
		return
	}

	if err := h.service.ResendOtp(r.Context(), transactionID); err != nil {
		log.Printf("OTP resend failed for transaction %s: %v", transactionID, err)
		switch {
		case errors.Is(err, services.ErrOtpNotFound), errors.Is(err, services.ErrTransactionNotFound):
			http.Error(w, `{"error":"no active otp challenge"}`, http.StatusNotFound)
		default:
			http.Error(w, fmt.Sprintf(`{"error":"Failed to resend otp: %v"}`, err), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"message": "OTP resent"}); err != nil {
		log.Printf("Failed to encode resend response: %v", err)
		http.Error(w, `{"error":"Failed to encode response"}`, http.StatusInternalServerError)
	}
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	transactionID := vars["transactionID"]
	if transactionID == "" {
		http.Error(w, `{"error":"Transaction ID is required"}`, http.StatusBadRequest)
		return
	}

	rec, err := h.service.GetTransaction(r.Context(), transactionID)
	if err != nil {
		log.Printf("Failed to get transaction %s: %v", transactionID, err)
		if errors.Is(err, services.ErrTransactionNotFound) {
			http.Error(w, `{"error":"transaction not found"}`, http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf(`{"error":"Failed to fetch transaction: %v"}`, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		log.Printf("Failed to encode transaction: %v", err)
		http.Error(w, `{"error":"Failed to encode response"}`, http.StatusInternalServerError)
	}
}
