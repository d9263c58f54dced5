package main

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Zelak312/flowarr/flowio"
	"github.com/Zelak312/flowarr/pwcnet"
	"github.com/Zelak312/flowarr/views"
)

type API struct {
	queue     *Queue
	store     *Sqlite
	pool      *PoolWorker
	estimator FlowEstimator
	hub       *Hub
	config    *Config
	logger    *logrus.Entry
}

func NewAPI(queue *Queue, store *Sqlite, pool *PoolWorker, estimator FlowEstimator,
	hub *Hub, config *Config, logger *logrus.Entry) *API {
	return &API{
		queue:     queue,
		store:     store,
		pool:      pool,
		estimator: estimator,
		hub:       hub,
		config:    config,
		logger:    logger,
	}
}

func (a *API) NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(LoggerMiddleware(a.logger))
	r.HTMLRender = &views.HTMLTemplRenderer{}

	r.GET("/", a.status)
	r.GET("/ping", a.ping)
	r.GET("/queue", a.listQueue)
	r.POST("/queue", a.addJob)
	r.GET("/queue/:id", a.getJob)
	r.DELETE("/queue/:id", a.deleteJob)
	r.GET("/failed", a.listFailed)
	r.GET("/workers", a.listWorkers)
	r.GET("/ws", a.hub.HandleConnections)
	r.POST("/flow", a.estimateFlow)

	return r
}

func (a *API) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func (a *API) listQueue(c *gin.Context) {
	c.JSON(http.StatusOK, a.queue.GetJobs())
}

func (a *API) addJob(c *gin.Context) {
	var job Job
	if err := c.ShouldBindJSON(&job); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	same, err := IsSamePath(job.Source, job.OutputPath)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	if same {
		c.String(http.StatusBadRequest, "source and output path can't be the same")
		return
	}

	job.ID = 0
	if _, err := a.store.InsertJob(&job); err != nil {
		a.logger.Error("Failed to insert job: ", err)
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	a.logger.WithFields(StructFields(job)).Debug("Job added to queue")
	a.queue.Enqueue(job)
	c.JSON(http.StatusOK, job)
}

func (a *API) getJob(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	job, index := a.queue.FindByID(id)
	if index == -1 {
		c.String(http.StatusNotFound, "job not found in queue")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":      job,
		"position": index,
	})
}

func (a *API) deleteJob(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	job, found := a.queue.RemoveByID(id)
	if !found {
		c.String(http.StatusNotFound, "job not found in queue")
		return
	}

	if err := a.store.DeleteJobByID(id); err != nil {
		a.logger.Error("Failed to delete job: ", err)
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	a.logger.WithField("id", id).Debug("Job removed from queue")
	c.JSON(http.StatusOK, job)
}

func (a *API) listFailed(c *gin.Context) {
	failed, err := a.store.GetFailedJobs()
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, failed)
}

func (a *API) listWorkers(c *gin.Context) {
	c.JSON(http.StatusOK, a.pool.GetWorkerInfos())
}

func (a *API) status(c *gin.Context) {
	data := views.StatusData{Model: a.config.Model}
	for _, job := range a.queue.GetJobs() {
		data.Jobs = append(data.Jobs, views.JobRow{
			ID:               job.ID,
			Source:           job.Source,
			Reference:        job.Reference,
			HighResReference: job.HighResReference,
			OutputPath:       job.OutputPath,
		})
	}

	for _, info := range a.pool.GetWorkerInfos() {
		row := views.WorkerRow{ID: info.ID, Active: info.Active, Step: info.Step, Progress: info.Progress}
		if info.Job != nil {
			row.JobID = info.Job.ID
		}
		data.Workers = append(data.Workers, row)
	}

	failed, err := a.store.GetFailedJobs()
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	for _, f := range failed {
		data.Failed = append(data.Failed, views.FailedRow{JobID: f.Job.ID, Source: f.Job.Source, Error: f.Error})
	}

	c.HTML(http.StatusOK, "", views.Status(data))
}

// estimateFlow takes two multipart images and answers with the .flo bytes
// of the flow from first to second.
func (a *API) estimateFlow(c *gin.Context) {
	first, err := formImage(c, "first")
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	second, err := formImage(c, "second")
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	if first.Bounds().Size() != second.Bounds().Size() {
		c.String(http.StatusBadRequest, fmt.Sprintf("image sizes differ: %v and %v",
			first.Bounds().Size(), second.Bounds().Size()))
		return
	}

	flow, err := a.estimator.Estimate(c.Request.Context(), flowio.ImageToTensor(first), flowio.ImageToTensor(second))
	if errors.Is(err, pwcnet.ErrShapeMismatch) || errors.Is(err, pwcnet.ErrChannels) {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		c.Error(err)
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := flowio.WriteFlo(&buf, flow); err != nil {
		c.Error(err)
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	c.Data(http.StatusOK, "application/octet-stream", buf.Bytes())
}

func formImage(c *gin.Context, field string) (image.Image, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("missing %s image: %w", field, err)
	}

	return decodeUpload(header)
}

func decodeUpload(header *multipart.FileHeader) (image.Image, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", header.Filename, err)
	}
	return img, nil
}
