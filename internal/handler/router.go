package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the HTTP API.
func NewRouter(deps *Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	pokeHandler := NewPokeHandler(deps.Pokes, deps.Attestations)
	accountHandler := NewAccountHandler(deps.Accounts, deps.Pokes, deps.Ledger, deps.Snapshots)
	adminHandler := NewAdminHandler(deps.Accounts)

	api := router.Group("/api")
	{
		api.GET("/healthz", func(c *gin.Context) {
			if deps.Health != nil {
				if err := deps.Health.HealthCheck(c.Request.Context()); err != nil {
					c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
					return
				}
			}
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		api.POST("/pokes", pokeHandler.RequestPoke)
		api.POST("/attestations", pokeHandler.IssueAttestation)

		accounts := api.Group("/accounts")
		{
			accounts.POST("", accountHandler.Register)
			accounts.GET("/:id/quota", accountHandler.GetQuota)
			accounts.GET("/:id/balance", accountHandler.GetBalance)
			accounts.GET("/:id/transactions", accountHandler.ListTransactions)
			accounts.GET("/:id/snapshot", accountHandler.GetSnapshot)
			accounts.POST("/:id/withdrawals", accountHandler.RequestWithdrawal)
		}

		admin := api.Group("/admin")
		{
			admin.POST("/adjustments", adminHandler.Adjust)
			admin.POST("/referrals", adminHandler.ApplyReferral)
		}
	}

	return router
}
