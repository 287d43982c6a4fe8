package cli

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/predict"
)

const (
	maxRequestBytes = 1 << 20
)

type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func predictAPIHandler(svc *predict.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

		req, err := predict.DecodeRequest(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		resp, err := svc.Handle(req)
		if err != nil {
			if errors.Is(err, predict.ErrInvalidRequest) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			slog.Error("prediction failed", "error", err)
			writeError(w, http.StatusInternalServerError, "prediction failed")
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func healthAPIHandler(modelURI string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Model: modelURI})
	}
}
