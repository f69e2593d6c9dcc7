package enrollment

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/FractionEstate/decentralized-did/pkg/app/errors"
	apphttp "github.com/FractionEstate/decentralized-did/pkg/app/http"
)

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service  Service
	logger   *zap.Logger
	validate *validator.Validate
}

// RegisterRoutes registers the enrollment endpoints on the given chi router
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{
		service:  service,
		logger:   logger,
		validate: validator.New(),
	}

	r.Post("/enroll", apphttp.HandleError(h.enroll))
	r.Post("/verify", apphttp.HandleError(h.verify))
	r.Post("/rotate", apphttp.HandleError(h.rotate))
}

// enroll handles POST /enroll
func (h *HTTP) enroll(w http.ResponseWriter, r *http.Request) error {
	var req EnrollRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	resp, err := h.service.Enroll(r.Context(), &req)
	if err != nil {
		return err
	}

	h.writeJSON(w, http.StatusCreated, resp)
	return nil
}

// verify handles POST /verify
func (h *HTTP) verify(w http.ResponseWriter, r *http.Request) error {
	var req VerifyRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	resp, err := h.service.Verify(r.Context(), &req)
	if err != nil {
		return err
	}

	h.writeJSON(w, http.StatusOK, resp)
	return nil
}

// rotate handles POST /rotate
func (h *HTTP) rotate(w http.ResponseWriter, r *http.Request) error {
	var req RotateRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	resp, err := h.service.RotateFinger(r.Context(), &req)
	if err != nil {
		return err
	}

	h.writeJSON(w, http.StatusOK, resp)
	return nil
}

// decode reads, parses and validates a request body.
func (h *HTTP) decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}

	if err := h.validate.Struct(dst); err != nil {
		return apperrors.BadRequestError(err, "request failed validation: "+err.Error())
	}
	return nil
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
