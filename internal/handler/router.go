package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agusgarcia3007/learnbase/backend/internal/handler/authoring"
	"github.com/agusgarcia3007/learnbase/backend/internal/handler/catalog"
	middlewarePkg "github.com/agusgarcia3007/learnbase/backend/internal/middleware"
	"github.com/agusgarcia3007/learnbase/backend/internal/model/user"
	chatService "github.com/agusgarcia3007/learnbase/backend/internal/service/chat"
	"github.com/agusgarcia3007/learnbase/backend/internal/store"
	"github.com/agusgarcia3007/learnbase/backend/pkg/utils"
)

// Dependencies are the services exposed over HTTP.
type Dependencies struct {
	Catalog        store.Repository
	Conversations  *chatService.Service
	Agent          authoring.Runner
	Tokens         map[string]user.Principal
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/healthz", healthHandler(deps.Catalog))

	if deps.Agent == nil {
		log.Println("[router] authoring agent not configured, turn endpoints answer 503")
	}
	authoringHandler := authoring.New(deps.Conversations, deps.Agent)
	catalogHandler := catalog.New(deps.Catalog)

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.Authenticate(deps.Tokens))

		api.Route("/authoring", func(ar chi.Router) {
			ar.Use(middlewarePkg.RequireElevated)
			authoringHandler.RegisterRoutes(ar)
		})

		api.Route("/catalog", catalogHandler.RegisterRoutes)
	})

	return r
}

func healthHandler(repo store.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := repo.Ping(ctx); err != nil {
			log.Printf("[health] catalog unreachable: %v", err)
			utils.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "catalog": err.Error()})
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
