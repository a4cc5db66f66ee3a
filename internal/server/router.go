package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	healthRoutePath             = "/healthz"
	scrapesRoutePath            = "/api/scrapes"
	scrapeRoutePath             = "/api/scrapes/:id"
	scrapeIDParameter           = "id"
	healthStatusKey             = "status"
	healthStatusOK              = "ok"
	errorResponseKey            = "error"
	tasksResponseKey            = "tasks"
	errorMessageInvalidPayload  = "invalid scrape request payload"
	errorMessageTaskNotFound    = "scrape task not found"
	logMessageRejectedScrape    = "rejected scrape request"
	logMessageMissingTaskRunner = "scrape tasks not configured"
	ginModeRelease              = "release"
)

var errMissingTasks = errors.New(logMessageMissingTaskRunner)

// RouterConfig configures the HTTP routing for scrape requests.
type RouterConfig struct {
	Tasks  *ScrapeTasks
	Logger *zap.Logger
}

type scrapeRequestPayload struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
	Amount int    `json:"amount"`
	Cursor string `json:"cursor"`
}

// NewRouter constructs a Gin engine configured with the scrape and health handlers.
func NewRouter(configuration RouterConfig) (*gin.Engine, error) {
	if configuration.Tasks == nil {
		return nil, errMissingTasks
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(ginModeRelease)
	engine := gin.New()
	engine.Use(gin.Recovery())

	handler := scrapeHandler{
		tasks:  configuration.Tasks,
		logger: logger,
	}

	engine.GET(healthRoutePath, handler.healthStatus)
	engine.POST(scrapesRoutePath, handler.startScrape)
	engine.GET(scrapesRoutePath, handler.listScrapes)
	engine.GET(scrapeRoutePath, handler.scrapeStatus)

	return engine, nil
}

type scrapeHandler struct {
	tasks  *ScrapeTasks
	logger *zap.Logger
}

func (handler scrapeHandler) startScrape(ginContext *gin.Context) {
	var payload scrapeRequestPayload
	if err := ginContext.ShouldBindJSON(&payload); err != nil {
		handler.logger.Warn(logMessageRejectedScrape, zap.Error(err))
		ginContext.JSON(http.StatusBadRequest, gin.H{errorResponseKey: errorMessageInvalidPayload})
		return
	}

	snapshot, err := handler.tasks.Start(ScrapeJob{
		Kind:   payload.Kind,
		Target: payload.Target,
		Amount: payload.Amount,
		Cursor: payload.Cursor,
	})
	if err != nil {
		handler.logger.Warn(logMessageRejectedScrape, zap.Error(err))
		ginContext.JSON(http.StatusBadRequest, gin.H{errorResponseKey: err.Error()})
		return
	}
	ginContext.JSON(http.StatusAccepted, snapshot)
}

func (handler scrapeHandler) scrapeStatus(ginContext *gin.Context) {
	snapshot, exists := handler.tasks.Snapshot(ginContext.Param(scrapeIDParameter))
	if !exists {
		ginContext.JSON(http.StatusNotFound, gin.H{errorResponseKey: errorMessageTaskNotFound})
		return
	}
	ginContext.JSON(http.StatusOK, snapshot)
}

func (handler scrapeHandler) listScrapes(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, gin.H{tasksResponseKey: handler.tasks.List()})
}

func (handler scrapeHandler) healthStatus(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, map[string]string{healthStatusKey: healthStatusOK})
}
