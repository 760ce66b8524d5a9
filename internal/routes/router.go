package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskd/internal/controller"
	"taskd/internal/middleware"
)

// Router mounts the task API and, when mcp is non-nil, the MCP
// streamable HTTP endpoint at /mcp.
func Router(tasks *controller.Tasks, mcp http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(), middleware.CORS())

	// Health for load balancers and K8s probes
	router.GET("/health", tasks.Health)
	router.GET("/ready", tasks.Ready)

	api := router.Group("/tasks")
	{
		api.GET("", tasks.ListTasks)
		api.GET("/stats", tasks.Stats)
		api.GET("/:id", tasks.GetTask)
		api.POST("", tasks.CreateTask)
		api.POST("/:id/complete", tasks.CompleteTask)
		api.PATCH("/:id/priority", tasks.UpdatePriority)
		api.DELETE("/:id", tasks.DeleteTask)
	}

	if mcp != nil {
		router.Any("/mcp", gin.WrapH(mcp))
	}
	return router
}
