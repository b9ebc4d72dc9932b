package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	mng "github.com/loykin/warden/internal/manager"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/process"
	"github.com/loykin/warden/internal/worker"
)

// Router provides embeddable HTTP handlers for inspecting and driving the
// supervisor. Endpoints:
//
//	GET  {basePath}/status    worker groups and their process snapshots
//	GET  {basePath}/state     the shared process-state table
//	POST {basePath}/restart   body: restartRequest JSON
//	POST {basePath}/scale     query: workers=N
//	POST {basePath}/shutdown  query: server=<ident> (optional)
//	GET  {basePath}/metrics   Prometheus exposition
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mgr      *mng.Manager
	basePath string
}

// NewRouter constructs a Router with a configurable basePath.
// Example basePath: "/inspect" results in /inspect/status etc.
func NewRouter(mgr *mng.Manager, basePath string) *Router {
	return &Router{mgr: mgr, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/state", r.handleState)
	group.POST("/restart", r.handleRestart)
	group.POST("/scale", r.handleScale)
	group.POST("/shutdown", r.handleShutdown)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Callers shut it down via the returned http.Server.
func NewServer(addr, basePath string, mgr *mng.Manager) (*http.Server, error) {
	r := NewRouter(mgr, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type workerStatus struct {
	Ident       string           `json:"ident"`
	Transient   bool             `json:"transient"`
	Restartable bool             `json:"restartable"`
	Tracked     bool             `json:"tracked"`
	Generation  int              `json:"generation"`
	Processes   []process.Status `json:"processes"`
}

type statusResp struct {
	State   string         `json:"state"`
	Workers []workerStatus `json:"workers"`
}

func (r *Router) handleStatus(c *gin.Context) {
	resp := statusResp{State: r.mgr.State().String()}
	appendGroup := func(ws []*worker.Worker) {
		for _, w := range ws {
			st := workerStatus{
				Ident:       w.Ident(),
				Transient:   w.Transient(),
				Restartable: w.Restartable(),
				Tracked:     w.Tracked(),
				Generation:  w.Generation(),
			}
			for _, h := range w.Handles() {
				st.Processes = append(st.Processes, h.Snapshot())
			}
			resp.Workers = append(resp.Workers, st)
		}
	}
	appendGroup(r.mgr.Transient())
	appendGroup(r.mgr.Durable())
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleState(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mgr.Table().Snapshot())
}

type restartRequest struct {
	Idents        []string `json:"idents"`
	ReloadedFiles string   `json:"reloaded_files"`
	Order         string   `json:"order"`
}

func (r *Router) handleRestart(c *gin.Context) {
	var req restartRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
			return
		}
	}
	for _, ident := range req.Idents {
		if !isSafeName(ident) {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid ident: allowed [A-Za-z0-9._-]"})
			return
		}
	}
	if err := r.mgr.Restart(req.Idents, req.ReloadedFiles, worker.ParseRestartOrder(req.Order)); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleScale(c *gin.Context) {
	n, err := strconv.Atoi(c.Query("workers"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "workers query param required"})
		return
	}
	if err := r.mgr.Scale(n); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleShutdown(c *gin.Context) {
	ident := c.Query("server")
	if ident != "" && !isSafeName(ident) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid server ident"})
		return
	}
	if ident != "" {
		if err := r.mgr.ShutdownServer(ident); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusOK, okResp{OK: true})
		return
	}
	r.mgr.Shutdown()
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
