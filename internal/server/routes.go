// Package server wires HTTP handlers into a gin engine for the relay
// application via routing helpers.
package server

import "github.com/gin-gonic/gin"

// SetupRoutes configures and returns a gin engine with all application routes.
func SetupRoutes(app *App) *gin.Engine {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(gin.Recovery(), requestLogger())

	engine.GET("/", HealthHandler)
	engine.GET("/test", TestPageHandler)

	api := engine.Group("/api")
	api.GET("", APIIndexHandler)
	api.POST("/token", app.PreviewTokenHandler)
	api.POST("/chat/token", app.ChatTokenHandler)

	ws := engine.Group("/ws")
	ws.GET("/chat", app.chat.WebSocketHandler)
	ws.GET("/preview", app.preview.WebSocketHandler)

	return engine
}
