package http

import (
	"github.com/gin-gonic/gin"

	"phyrisk/internal/bootstrap"
	"phyrisk/internal/transport/http/handler"
	"phyrisk/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.Recovery(app.Logger), middleware.RequestLogger(app.Logger))
	router.MaxMultipartMemory = 8 << 20

	svc := app.Services
	logger := app.Logger

	healthHandler := handler.NewHealthHandler(app)
	authHandler := handler.NewAuthHandler(svc.Auth, logger)
	datasetHandler := handler.NewDatasetHandler(svc.Dataset, logger)
	riskHandler := handler.NewRiskHandler(svc.Risk, logger)
	xaiHandler := handler.NewXAIHandler(svc.XAI, logger)
	chatHandler := handler.NewChatHandler(svc.Chat, logger)
	adminHandler := handler.NewAdminHandler(svc.Admin, logger)

	router.GET("/healthz", healthHandler.Check)

	authRequired := middleware.AuthJWT(app.Config.Auth.JWTSecret, svc.Auth)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", authRequired, authHandler.Me)

	datasetGroup := v1.Group("/datasets", authRequired)
	datasetGroup.POST("", datasetHandler.Create)
	datasetGroup.GET("", datasetHandler.List)
	datasetGroup.GET("/:id", datasetHandler.Get)
	datasetGroup.DELETE("/:id", datasetHandler.Delete)
	datasetGroup.POST("/:id/upload", datasetHandler.Upload)
	datasetGroup.GET("/:id/versions", datasetHandler.ListVersions)
	datasetGroup.GET("/:id/versions/:version", datasetHandler.GetVersion)

	riskGroup := v1.Group("/risk", authRequired)
	riskGroup.GET("/model", riskHandler.ModelInfo)
	riskGroup.POST("/predict", riskHandler.Predict)
	riskGroup.POST("/assessments", riskHandler.CreateAssessment)
	riskGroup.GET("/assessments", riskHandler.ListAssessments)
	riskGroup.GET("/assessments/:id", riskHandler.GetAssessment)
	riskGroup.GET("/assessments/:id/records", riskHandler.ListRecords)
	riskGroup.GET("/records/:id", riskHandler.GetRecord)

	xaiGroup := v1.Group("/xai", authRequired)
	xaiGroup.GET("/local/:record_id", xaiHandler.Local)
	xaiGroup.GET("/global/:assessment_id", xaiHandler.Global)

	chatGroup := v1.Group("/chat", authRequired)
	chatGroup.POST("/conversations", chatHandler.CreateConversation)
	chatGroup.GET("/conversations", chatHandler.ListConversations)
	chatGroup.DELETE("/conversations/:id", chatHandler.DeleteConversation)
	chatGroup.GET("/history", chatHandler.GetHistory)
	chatGroup.POST("/message", chatHandler.SendMessage)
	chatGroup.POST("/stream", chatHandler.StreamMessage)

	adminGroup := v1.Group("/admin", authRequired, middleware.RequireAdmin())
	adminGroup.GET("/metrics", adminHandler.Metrics)
	adminGroup.GET("/users", adminHandler.ListUsers)
	adminGroup.PATCH("/users/:id", adminHandler.UpdateUser)

	return router
}
