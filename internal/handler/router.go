package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/festreg/internal/auth"
	"github.com/Shivanand-hulikatti/festreg/internal/metrics"
	"github.com/Shivanand-hulikatti/festreg/internal/model"
)

// Router wires the handlers behind the middleware stack and the two gates.
type Router struct {
	Events       *EventHandler
	Registration *RegistrationHandler
	Gates        auth.SettingReader
	Metrics      *metrics.Metrics
	Log          *zap.Logger
}

// Handler builds the chi router.
func (rt Router) Handler() http.Handler {
	log := rt.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(log.Named("http")))
	r.Use(Instrument(rt.Metrics))
	r.Use(CORS)

	r.Get("/health", HealthCheck)
	r.Method(http.MethodGet, "/metrics", rt.Metrics.Handler())

	r.Get("/events", rt.Events.ListEvents)
	r.Get("/events/{link}", rt.Events.EventByLink)

	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.Gate(rt.Gates, model.SettingAdminGate))
		r.Post("/events", rt.Events.CreateEvent)
		r.Put("/events/{id}", rt.Events.UpdateEvent)
		r.Delete("/events/{id}", rt.Events.DeleteEvent)
		r.Get("/registrations", rt.Events.ListRegistrations)
		r.Delete("/registrations/{id}", rt.Events.DeleteRegistration)
		r.Get("/dashboard", rt.Events.Dashboard)
		r.Get("/consistency", rt.Events.Consistency)
		r.Get("/settings", rt.Events.ListSettings)
		r.Put("/settings/{name}", rt.Events.PutSetting)
	})

	r.Route("/registration", func(r chi.Router) {
		r.Use(auth.Gate(rt.Gates, model.SettingRegisterGate))
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", rt.Registration.CreateSession)
			r.Get("/{sid}", rt.Registration.GetSession)
			r.Delete("/{sid}", rt.Registration.DeleteSession)
			r.Put("/{sid}/form", rt.Registration.PutForm)
			r.Put("/{sid}/payment-mode", rt.Registration.PutPaymentMode)
			r.Post("/{sid}/{action}", rt.Registration.Action)
		})
		r.Post("/services/quote", rt.Registration.QuoteSale)
		r.Post("/services", rt.Registration.RecordSale)
		r.Get("/services", rt.Registration.ListSales)
	})

	return r
}
