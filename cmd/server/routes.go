package main

import (
	"github.com/dailydues/backend/internal/middleware"
	"github.com/dailydues/backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	r.GET("/health", svc.healthHandler.CheckHealth)

	api := r.Group("/api")
	{
		// Auth routes (public, rate limited)
		auth := api.Group("/auth")
		{
			auth.POST("/login", svc.limiter.Middleware(), svc.authHandler.Login)
			auth.POST("/refresh", svc.limiter.Middleware(), svc.authHandler.Refresh)
			auth.GET("/config", svc.authHandler.GetAuthConfig)
		}

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			// Auth
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)

			// Activity stream (token may arrive as a query parameter)
			protected.GET("/events", svc.sseHandler.StreamActivity)

			// Daily logs
			protected.GET("/logs", svc.dailyLogHandler.List)
			protected.GET("/logs/due", svc.dailyLogHandler.Due)
			protected.POST("/logs", svc.dailyLogHandler.Submit)

			// Leaderboard
			protected.GET("/leaderboard", svc.leaderboardHandler.Get)

			// Challenges
			protected.GET("/challenges", svc.challengeHandler.List)
			protected.POST("/challenges/:id/join", svc.challengeHandler.Join)
			protected.POST("/challenges/:id/votes", svc.voteLimiter.Middleware(), svc.challengeHandler.Vote)
			protected.GET("/challenges/:id/leaderboard", svc.challengeHandler.Leaderboard)

			// Read-only lookups
			protected.GET("/commitments", svc.commitmentHandler.List)
			protected.GET("/holidays", svc.holidayHandler.List)
			protected.GET("/holidays/countries", svc.holidayHandler.Countries)
			protected.GET("/holidays/national", svc.holidayHandler.National)
			protected.GET("/realms", svc.realmHandler.List)
		}

		// Admin only routes
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), middleware.AuditLog())
		{
			// Approvals
			admin.GET("/approvals", svc.dailyLogHandler.Pending)
			admin.POST("/approvals/:id/approve", svc.dailyLogHandler.Approve)
			admin.POST("/approvals/:id/reject", svc.dailyLogHandler.Reject)

			admin.POST("/leaderboard/share", svc.leaderboardHandler.Share)

			admin.POST("/challenges", svc.challengeHandler.Create)
			admin.POST("/challenges/:id/archive", svc.challengeHandler.Archive)

			// Commitments
			admin.POST("/commitments", svc.commitmentHandler.Create)
			admin.PUT("/commitments/:id", svc.commitmentHandler.Update)
			admin.PATCH("/commitments/:id/active", svc.commitmentHandler.SetActive)
			admin.DELETE("/commitments/:id", svc.commitmentHandler.Delete)
			admin.PUT("/users/:id/commitments", svc.commitmentHandler.Assign)

			// Holidays
			admin.POST("/holidays", svc.holidayHandler.Create)
			admin.DELETE("/holidays/:id", svc.holidayHandler.Delete)

			// Realms
			admin.POST("/realms", svc.realmHandler.Create)
			admin.PUT("/realms/:id", svc.realmHandler.Update)
			admin.DELETE("/realms/:id", svc.realmHandler.Delete)
			admin.GET("/realms/:id/members", svc.realmHandler.Members)
			admin.POST("/realms/:id/members", svc.realmHandler.AddMember)

			// Users
			admin.GET("/users", svc.userHandler.List)
			admin.POST("/users", svc.userHandler.Create)
			admin.PUT("/users/:id", svc.userHandler.Update)

			// System Logs
			admin.GET("/system-logs", svc.systemLogHandler.List)
		}
	}
}
