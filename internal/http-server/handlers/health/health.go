// Package health serves the unauthenticated liveness probe.
package health

import (
	"net/http"

	"github.com/go-chi/render"
)

type healthResponse struct {
	Status string `json:"status"`
}

func Check() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, healthResponse{Status: "healthy"})
	}
}
