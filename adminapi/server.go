package adminapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/SharedCode/kvenv"
	"github.com/SharedCode/kvenv/adminapi/docs"
	"github.com/SharedCode/kvenv/environment"
	"github.com/SharedCode/kvenv/gc"
)

// @BasePath /admin/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// Server wires the Environment and GC collector it introspects into a gin router, grounded on
// the teacher's restapi.Main layout, reworked to a read-only, reusable http.Server.
type Server struct {
	env    *environment.Environment
	gc     *gc.Collector
	auth   *kvenv.AdminAuthConfig
	routes map[string]restMethod

	router *gin.Engine
	http   *http.Server
}

// NewServer builds the admin router over env/collector, gating every route behind auth's Okta
// verification when auth is non-nil (SPEC_FULL.md §10).
func NewServer(env *environment.Environment, collector *gc.Collector, auth *kvenv.AdminAuthConfig) *Server {
	s := &Server{
		env:    env,
		gc:     collector,
		auth:   auth,
		routes: make(map[string]restMethod),
	}
	s.register(GET, "/stores", s.getStores)
	s.register(GET, "/transactions", s.getTransactions)
	s.register(GET, "/gc", s.getGCStatus)
	s.register(GET, "/deferred", s.getDeferredStatus)

	router := gin.Default()
	docs.SwaggerInfo.BasePath = "/admin/v1"

	v1 := router.Group("/admin/v1")
	{
		for _, rm := range s.routes {
			guarded := s.verifyHeaderToken(rm.Handler)
			switch rm.Verb {
			case GET:
				v1.GET(rm.Path, guarded)
			}
		}
	}
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	s.router = router
	return s
}

// Handler returns the underlying http.Handler, for tests or embedding in another process's mux.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe starts the admin HTTP server on addr, blocking until ctx is canceled or the
// server fails to start.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
