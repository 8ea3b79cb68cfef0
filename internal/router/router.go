package router

import (
	"github.com/fasthttp/router"

	apiHandler "github.com/opencdp/profile-engine/api/handler"
	"github.com/opencdp/profile-engine/internal/metrics"
)

type Handlers struct {
	Track   *apiHandler.TrackHandler
	Profile *apiHandler.ProfileHandler
	Merge   *apiHandler.MergeHandler
	Health  *apiHandler.HealthHandler
}

func New(handlers Handlers, enableMetrics bool) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)
	if enableMetrics {
		r.GET("/metrics", metrics.Handler())
	}

	// Ingest and read side
	r.POST("/api/v1/profiles/track", handlers.Track.Track)
	r.GET("/api/v1/profiles/{tenant}/{app}/{user}", handlers.Profile.GetProfile)
	r.DELETE("/api/v1/profiles/{tenant}/{app}/{user}", handlers.Profile.DeleteIdentity)

	// Merge engine
	r.POST("/api/v1/merge/auto", handlers.Merge.AutoMerge)
	r.POST("/api/v1/merge/manual", handlers.Merge.ManualMerge)
	r.GET("/api/v1/masters/{tenant}/{id}", handlers.Merge.GetMaster)

	return r
}
