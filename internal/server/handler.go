package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fakegpu/internal/devtree"
	"fakegpu/internal/inventory"
	"fakegpu/internal/lease"
	"fakegpu/internal/logging"
	"fakegpu/internal/metrics"
)

// traceTailLimit caps how many trace records one request may pull.
const traceTailLimit = 1000

type response struct {
	Ok    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type leaseStatus struct {
	Held  bool         `json:"held"`
	Lease *lease.Lease `json:"lease,omitempty"`
}

// API bundles the emulator state the inspection endpoints read from.
type API struct {
	collector *inventory.Collector
	publisher *devtree.Publisher
	leases    *lease.Manager
	traceLog  *metrics.TraceLog
	recorder  *metrics.Recorder
	logger    *logging.Logger
}

// NewAPI creates the inspection API over the given components.
func NewAPI(
	collector *inventory.Collector,
	publisher *devtree.Publisher,
	leases *lease.Manager,
	traceLog *metrics.TraceLog,
	recorder *metrics.Recorder,
	logger *logging.Logger,
) *API {
	return &API{
		collector: collector,
		publisher: publisher,
		leases:    leases,
		traceLog:  traceLog,
		recorder:  recorder,
		logger:    logger,
	}
}

// RegisterRoutes attaches all endpoints to the router.
func (a *API) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", a.healthz)
	router.GET("/v1/report", a.report)
	router.GET("/v1/devices", a.devices)
	router.GET("/v1/tree", a.tree)
	router.GET("/v1/lease", a.lease)
	router.GET("/v1/trace", a.trace)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (a *API) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, response{Ok: true})
}

// report returns a fresh inventory snapshot. A failed library probe is
// still a valid report, so the status is 200 either way.
func (a *API) report(c *gin.Context) {
	report := a.collector.Collect()
	c.JSON(http.StatusOK, response{Ok: true, Data: report})
}

func (a *API) devices(c *gin.Context) {
	report := a.collector.Collect()
	if !report.LibraryOk {
		c.JSON(http.StatusServiceUnavailable, response{Ok: false, Error: report.ErrorMessage})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: report.Devices})
}

func (a *API) tree(c *gin.Context) {
	status, err := a.publisher.Status()
	if err != nil {
		a.logger.Error("server.tree.failed", "Failed to read tree status", map[string]interface{}{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, response{Ok: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: status})
}

func (a *API) lease(c *gin.Context) {
	current, err := a.leases.Status()
	if err != nil {
		a.logger.Error("server.lease.failed", "Failed to read lease status", map[string]interface{}{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, response{Ok: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: leaseStatus{
		Held:  current != nil,
		Lease: current,
	}})
}

func (a *API) trace(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("n", "50"))
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: "n must be a non-negative integer"})
		return
	}
	if n > traceTailLimit {
		n = traceTailLimit
	}

	if a.traceLog == nil {
		c.JSON(http.StatusOK, response{Ok: true, Data: []metrics.TraceRecord{}})
		return
	}

	records, err := a.traceLog.Tail(n)
	if err != nil {
		a.logger.Error("server.trace.failed", "Failed to read trace log", map[string]interface{}{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, response{Ok: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: records})
}
