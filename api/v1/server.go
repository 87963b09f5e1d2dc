package v1

import "github.com/gin-gonic/gin"

// ServerInterface is implemented by the API handlers.
type ServerInterface interface {
	// (GET /collections)
	ListCollections(c *gin.Context)
	// (POST /collections)
	CreateCollection(c *gin.Context)
	// (GET /collections/{id})
	GetCollection(c *gin.Context, id string)
	// (DELETE /collections/{id})
	DeleteCollection(c *gin.Context, id string)
	// (GET /collections/{id}/results)
	GetCollectionResults(c *gin.Context, id string)
	// (POST /collections/{id}/cancel)
	CancelCollection(c *gin.Context, id string)
	// (POST /collections/{id}/retry)
	RetryCollection(c *gin.Context, id string)
	// (POST /platforms/{id}/sync)
	SyncPlatform(c *gin.Context, id string)
}

func withID(fn func(c *gin.Context, id string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		fn(c, c.Param("id"))
	}
}

// RegisterHandlers mounts every route of si on router.
func RegisterHandlers(router gin.IRouter, si ServerInterface) {
	router.GET("/collections", si.ListCollections)
	router.POST("/collections", si.CreateCollection)
	router.GET("/collections/:id", withID(si.GetCollection))
	router.DELETE("/collections/:id", withID(si.DeleteCollection))
	router.GET("/collections/:id/results", withID(si.GetCollectionResults))
	router.POST("/collections/:id/cancel", withID(si.CancelCollection))
	router.POST("/collections/:id/retry", withID(si.RetryCollection))
	router.POST("/platforms/:id/sync", withID(si.SyncPlatform))
}
