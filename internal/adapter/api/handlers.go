package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"forward-elements/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// createPaymentSession handles POST /elements/payment-session. Decimal
// amounts are converted to integer cents before the record is stored; the
// 201 body carries the session plus the URL the embedded form mounts from.
func (s *Server) createPaymentSession(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePaymentSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	now := time.Now().UTC()
	session, err := s.stores.Sessions.Create(r.Context(), domain.PaymentSession{
		ID:          uuid.NewString(),
		Amount:      req.AmountCents(),
		Currency:    req.Currency,
		Methods:     req.Methods,
		ReferenceID: req.ReferenceID,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		s.logger.Error("create session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create payment session")
		return
	}

	s.publish(r, domain.EventSessionCreated, session.ID)
	s.logger.Info("payment session created", "session_id", session.ID, "amount", session.Amount)
	writeJSON(w, http.StatusCreated, domain.CreatePaymentSessionResponse{
		PaymentSession: session,
		URL:            domain.SessionURL(s.cfg.BaseURL, session.ID),
	})
}

// getPaymentSession handles GET /elements/payment-session/{id}.
func (s *Server) getPaymentSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	session, err := s.stores.Sessions.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Not Found", "Payment session not found")
		return
	}
	writeJSON(w, http.StatusOK, domain.CreatePaymentSessionResponse{
		PaymentSession: session,
		URL:            domain.SessionURL(s.cfg.BaseURL, session.ID),
	})
}

// createPayment handles POST /elements/payment. The method must belong to
// the session and the amount must equal the session amount exactly.
func (s *Server) createPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	session, err := s.stores.Sessions.GetByID(r.Context(), req.SessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Not Found", "Payment session not found")
		return
	}
	method, err := s.stores.Methods.GetByID(r.Context(), req.MethodID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Not Found", "Payment method not found")
		return
	}
	if method.SessionID != session.ID {
		writeError(w, http.StatusBadRequest, "Bad Request", "Payment method does not match session")
		return
	}
	if req.Amount != session.Amount {
		writeError(w, http.StatusBadRequest, "Bad Request", "Payment amount does not match session")
		return
	}

	now := time.Now().UTC()
	payment := domain.Payment{
		ID:          uuid.NewString(),
		Method:      method.Method,
		MethodID:    method.ID,
		Amount:      session.Amount,
		Currency:    session.Currency,
		Status:      domain.PaymentCaptured,
		ReferenceID: req.ReferenceID,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p := req.Payor; p != nil {
		payment.PayorFirstName = p.FirstName
		payment.PayorLastName = p.LastName
		payment.PayorEmail = p.Email
		payment.PayorPhone = p.Phone
		payment.PayorAddressLine1 = p.Address.Line1
		payment.PayorAddressLine2 = p.Address.Line2
		payment.PayorAddressCity = p.Address.City
		payment.PayorAddressState = p.Address.State
		payment.PayorAddressPostalCode = p.Address.PostalCode
		payment.PayorAddressCountry = p.Address.Country
	}

	created, err := s.stores.Payments.Create(r.Context(), payment)
	if err != nil {
		s.logger.Error("create payment failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create payment")
		return
	}

	s.publish(r, domain.EventPaymentCreated, created.ID)
	s.logger.Info("payment created", "payment_id", created.ID, "session_id", session.ID, "amount", created.Amount)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) publish(r *http.Request, eventType domain.EventType, id string) {
	if s.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"id": id})
	s.bus.Publish(r.Context(), domain.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
