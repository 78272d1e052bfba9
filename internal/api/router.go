/**
 * @description
 * HTTP router setup for the ATM service using go-chi/chi. Kiosk routes model
 * the physical surfaces of the machine and carry no authentication; admin
 * routes are JWT-protected and CORS-enabled for the back-office panel.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers kiosk and admin routes.
func NewRouter(kiosk *KioskHandler, admin *AdminHandler, adminJWTSecret, adminPanelOrigin string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ATM service is healthy"))
	})

	r.Route("/kiosk", func(r chi.Router) {
		r.Post("/card", kiosk.InsertCard)
		r.Post("/keypad/{key}", kiosk.PressKey)
		r.Post("/buttons/{side}/{index}", kiosk.PressButton)
		r.Get("/screen", kiosk.GetScreen)
		r.Get("/buttons", kiosk.GetButtons)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{adminPanelOrigin},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Use(AdminAuthMiddleware(adminJWTSecret))
		r.Post("/customers", admin.CreateCustomer)
		r.Get("/customers", admin.ListCustomers)
		r.Put("/customers/{id}", admin.UpdateCustomer)
	})

	return r
}
