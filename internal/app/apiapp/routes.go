package apiapp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Ozonelabrada/resqhub-sub003/internal/config"
	authsvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/auth"
	expirationsvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/expiration"
	handoversvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/handover"
	lifecyclesvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/lifecycle"
	rejectionssvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/rejections"
	verificationsvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/verification"
	httperrors "github.com/Ozonelabrada/resqhub-sub003/internal/transport/http/errors"
	"github.com/Ozonelabrada/resqhub-sub003/internal/transport/http/handlers"
)

type Dependencies struct {
	LifecycleService    *lifecyclesvc.Service
	ExpirationService   *expirationsvc.Service
	HandoverService     *handoversvc.Service
	VerificationService *verificationsvc.Service
	RejectionsService   *rejectionssvc.Service
	JWTManager          *authsvc.JWTManager
	Logger              *zap.Logger
	Config              config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	matchesHandler := handlers.NewMatchesHandler(deps.LifecycleService, deps.ExpirationService)
	handoverHandler := handlers.NewHandoverHandler(deps.HandoverService, deps.LifecycleService)
	verificationHandler := handlers.NewVerificationHandler(deps.VerificationService)
	rejectionsHandler := handlers.NewRejectionsHandler(deps.RejectionsService)

	authMW := AuthMiddleware(deps.JWTManager, deps.Logger)
	adminMW := RequireRole(authsvc.RoleAdmin)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httperrors.Write(w, http.StatusOK, struct {
			OK bool `json:"ok"`
		}{OK: true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/matches", func(r chi.Router) {
			r.Use(authMW)
			r.Post("/", matchesHandler.Create)
			r.Get("/{id}", matchesHandler.Get)
			r.Post("/{id}/status", matchesHandler.UpdateStatus)
			r.Post("/{id}/handover/confirm", handoverHandler.Confirm)
			r.Post("/{id}/handover/cancel", handoverHandler.Cancel)
			r.Get("/{id}/verification/question", verificationHandler.Question)
			r.Post("/{id}/verification/answer", verificationHandler.Answer)
		})

		r.With(authMW, adminMW).Put("/reports/{id}/verification/questions", verificationHandler.SeedQuestions)

		r.With(authMW).Get("/users/{id}/rejections/stats", rejectionsHandler.Stats)
		r.With(authMW, adminMW).Post("/users/{id}/flag", rejectionsHandler.Flag)
		r.With(authMW, adminMW).Get("/admin/rejections/analytics", rejectionsHandler.Analytics)
	})
}
