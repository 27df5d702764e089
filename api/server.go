package api

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/Coffee-fun/auto-trading/agent"
	"github.com/Coffee-fun/auto-trading/config"
	"github.com/Coffee-fun/auto-trading/manager"
)

// Server HTTP API server
type Server struct {
	router  *gin.Engine
	agents  *manager.AgentManager
	envFile string
	port    int
}

// NewServer creates the API server around the agent manager.
func NewServer(agents *manager.AgentManager, port int) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()

	// Request logging middleware for debugging
	router.Use(func(c *gin.Context) {
		log.Printf("📥 Incoming request: %s %s%s (from %s)",
			c.Request.Method, c.Request.Host, c.Request.URL.Path, c.ClientIP())
		c.Next()
	})

	router.Use(corsMiddleware())

	s := &Server{
		router:  router,
		agents:  agents,
		envFile: ".env",
		port:    port,
	}
	s.setupRoutes()
	return s
}

// corsMiddleware CORS middleware
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Cache-Control")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleRoot)
	s.router.Any("/health", s.handleHealth)

	s.router.POST("/run_cycle", s.handleRunCycle)
	s.router.GET("/recommendations", s.handleRecommendations)
	s.router.GET("/create_new_run", s.handleCreateNewRun)
	s.router.GET("/runs", s.handleRuns)
	s.router.GET("/runs/:run_id/logs", s.handleRunLogs)
	s.router.POST("/user_feedback", s.handleUserFeedback)

	s.router.POST("/update-keys", s.handleUpdateKeys)
	s.router.GET("/has-keys", s.handleHasKeys)

	s.router.NoRoute(func(c *gin.Context) {
		log.Printf("❌ 404 - Route not found: %s %s%s",
			c.Request.Method, c.Request.Host, c.Request.URL.Path)
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("route not found: %s %s", c.Request.Method, c.Request.URL.Path),
		})
	})
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Coffee trading agent is up ☕"})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type runCycleRequest struct {
	RunID string `json:"run_id"`
}

// handleRunCycle starts (or resumes) a run's cycle loop in the background.
// Setup failures still answer 200; the error surfaces in the status field.
func (s *Server) handleRunCycle(c *gin.Context) {
	var req runCycleRequest
	_ = c.ShouldBindJSON(&req)

	runID := req.RunID
	if runID == "" {
		if active := s.agents.Active(); active != nil {
			runID = active.RunID()
		} else {
			id, err := s.agents.GenerateRunID()
			if err != nil {
				log.Printf("❌ Failed to generate run id: %v", err)
				c.JSON(http.StatusOK, gin.H{"status": "Error", "logs": []agent.LogEntry{}})
				return
			}
			runID = id
		}
	}

	a, err := s.agents.Replace(runID)
	if err != nil {
		log.Printf("❌ Failed to start run %s: %v", runID, err)
		c.JSON(http.StatusOK, gin.H{"status": "Error", "logs": []agent.LogEntry{}})
		return
	}

	a.Run()
	c.JSON(http.StatusOK, gin.H{"status": "Started"})
}

func (s *Server) handleRecommendations(c *gin.Context) {
	active := s.agents.Active()
	if active == nil {
		c.JSON(http.StatusOK, []agent.RecommendationRow{})
		return
	}
	c.JSON(http.StatusOK, active.LedgerSnapshot())
}

func (s *Server) handleCreateNewRun(c *gin.Context) {
	runID, err := s.agents.GenerateRunID()
	if err != nil {
		log.Printf("❌ Failed to create run: %v", err)
		c.JSON(http.StatusOK, gin.H{"status": "Error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "status": "ready"})
}

func (s *Server) handleRuns(c *gin.Context) {
	ids, err := s.agents.ListRunIDs()
	if err != nil {
		log.Printf("❌ Failed to list runs: %v", err)
		c.JSON(http.StatusOK, gin.H{"runs": []string{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": ids})
}

// handleRunLogs returns a run's persisted log sequence. The live in-memory
// status is included when the run is the active agent; otherwise IDLE.
func (s *Server) handleRunLogs(c *gin.Context) {
	runID := c.Param("run_id")

	status := "IDLE"
	var logs []agent.LogEntry

	if active := s.agents.Active(); active != nil && active.RunID() == runID {
		status = string(active.Status())
		logs = active.LogsSnapshot()
	} else {
		persisted, err := s.agents.RunLogs(runID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"error": "Run ID not found"})
			return
		}
		logs = persisted
	}

	if logs == nil {
		logs = []agent.LogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "status": status})
}

type userFeedbackRequest struct {
	Feedback string `json:"feedback"`
}

func (s *Server) handleUserFeedback(c *gin.Context) {
	var req userFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Feedback == "" {
		c.JSON(http.StatusOK, gin.H{"status": "Error processing feedback"})
		return
	}

	active := s.agents.Active()
	if active == nil {
		c.JSON(http.StatusOK, gin.H{"status": "Error processing feedback"})
		return
	}

	logs := active.ProcessUserInput(c.Request.Context(), req.Feedback)
	c.JSON(http.StatusOK, gin.H{
		"status": "Feedback processed, will be incorporated in the next run",
		"logs":   logs,
	})
}

// handleUpdateKeys writes secrets to the process environment and the .env
// file so they survive restarts.
func (s *Server) handleUpdateKeys(c *gin.Context) {
	var keys map[string]string
	if err := c.ShouldBindJSON(&keys); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	env, err := godotenv.Read(s.envFile)
	if err != nil {
		env = map[string]string{}
	}
	for key, value := range keys {
		if value == "" {
			continue
		}
		os.Setenv(key, value)
		env[key] = value
	}
	if err := godotenv.Write(env, s.envFile); err != nil {
		log.Printf("⚠️ Failed to persist keys to %s: %v", s.envFile, err)
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleHasKeys(c *gin.Context) {
	var has, missing []string
	for _, key := range config.RequiredKeys {
		if os.Getenv(key) != "" {
			has = append(has, key)
		} else {
			missing = append(missing, key)
		}
	}
	if has == nil {
		has = []string{}
	}
	if missing == nil {
		missing = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"has": has, "missing": missing})
}

// Start runs the HTTP server. Blocks until the listener fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	log.Printf("🌐 API server started at http://localhost%s", addr)
	log.Printf("📊 API Documentation:")
	log.Printf("  • POST /run_cycle            - Start or resume a run's trading loop")
	log.Printf("  • GET  /recommendations      - Current recommendation ledger")
	log.Printf("  • GET  /create_new_run       - Allocate a fresh run id")
	log.Printf("  • GET  /runs                 - List known runs")
	log.Printf("  • GET  /runs/:run_id/logs    - Logs and status for a run")
	log.Printf("  • POST /user_feedback        - Submit free-form feedback")
	log.Printf("  • POST /update-keys          - Update API keys")
	log.Printf("  • GET  /has-keys             - Report configured keys")
	log.Printf("  • GET  /health               - Health check")
	log.Println()

	return s.router.Run(addr)
}
