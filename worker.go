package main

import (
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Zelak312/flowarr/flowio"
)

var retryLimit int = 5

var errInputNotFound = errors.New("job input not found")

type Worker struct {
	id         int
	logger     *logrus.Entry
	poolWorker *PoolWorker
	hub        *Hub
	sync.RWMutex

	workerInfo WorkerInfo
}

type WorkerInfo struct {
	ID       int     `json:"id"`
	Active   bool    `json:"active"`
	Step     string  `json:"step"`
	Progress float64 `json:"progress"`
	Job      *Job    `json:"job"`
}

func NewWorker(id int, logger *logrus.Entry, poolWorker *PoolWorker, hub *Hub) *Worker {
	return &Worker{
		id:         id,
		logger:     logger,
		poolWorker: poolWorker,
		hub:        hub,
		workerInfo: WorkerInfo{ID: id},
	}
}

func (w *Worker) start() {
	for job := range w.poolWorker.workChannel {
		job := job
		w.setJob(&job)
		if err := w.doWork(&job); err != nil {
			w.logger.Warn(err)
		}
		w.setJob(nil)
	}
}

func (w *Worker) doWork(job *Job) error {
	output, err := w.processJob(job)
	if err != nil && w.poolWorker.ctx.Err() != nil {
		// The job stays not done in the database and resumes on next start
		w.logger.Info("Stopped while processing job: ", w.poolWorker.ctx.Err())
		return nil
	}

	if errors.Is(err, errInputNotFound) {
		return w.failJob(job, output, err)
	}

	if err != nil {
		w.handleProcessError(job, output, err)
		// Error was handled already
		return nil
	}

	if err := w.poolWorker.store.MarkJobAsDone(job); err != nil {
		w.logger.Error("Failed to mark job as done: ", err)
		return err
	}

	w.logger.Info("Finished processing job")
	return nil
}

func (w *Worker) handleProcessError(job *Job, output string, processErr error) {
	w.logger.WithFields(StructFields(job)).Error("Error processing job: ", processErr)
	if output != "" {
		w.logger.Debug("Process output: ", output)
	}

	retries, err := w.poolWorker.store.GetJobRetries(job)
	if err != nil {
		w.logger.WithFields(StructFields(job)).Error("Failed to get retries: ", err)
		return
	}

	if retries >= retryLimit {
		_ = w.failJob(job, output, processErr)
		return
	}

	retries++
	err = w.poolWorker.store.UpdateJobRetries(job, retries)
	if err != nil {
		w.logger.WithFields(StructFields(job)).Error("Failed to update job retries: ", err)
		return
	}

	w.poolWorker.queue.Enqueue(*job)
	w.logger.WithFields(StructFields(job)).Info("Requeue job (back of the queue and retrying)")
}

func (w *Worker) failJob(job *Job, output string, failError error) error {
	w.logger.WithFields(StructFields(job)).Info("Job failed, removing it from queue")
	err := w.poolWorker.store.FailJob(job, output, failError.Error())
	if err != nil {
		w.logger.WithFields(StructFields(job)).Error("Failed to fail the job: ", err)
		return err
	}

	return nil
}

func requirePath(p string) error {
	exist, err := PathExist(p)
	if err != nil {
		return err
	}

	if !exist {
		return fmt.Errorf("%w: %s", errInputNotFound, p)
	}

	return nil
}

// processJob estimates the flow from every frame of the source to the
// reference and writes the artifacts. The returned string is the decoder
// output, if any, for failure reports.
func (w *Worker) processJob(job *Job) (string, error) {
	ctx := w.poolWorker.ctx
	config := w.poolWorker.config
	w.logger.WithFields(StructFields(job)).Info("Processing job")

	inputs := []string{job.Source, job.Reference}
	if job.HighResReference != "" {
		inputs = append(inputs, job.HighResReference)
	}
	for _, input := range inputs {
		if err := requirePath(input); err != nil {
			return "", err
		}
	}

	w.updateStep("Loading reference")
	reference, err := flowio.LoadImage(job.Reference)
	if err != nil {
		return "", err
	}

	var highRes image.Image
	if job.HighResReference != "" {
		highRes, err = flowio.LoadImage(job.HighResReference)
		if err != nil {
			return "", err
		}
	}

	outputs, err := newOutputWriter(job.OutputPath, config, highRes != nil)
	if err != nil {
		return "", err
	}

	referenceCopy := filepath.Join(job.OutputPath, filepath.Base(job.Reference))
	same, err := IsSamePath(job.Reference, referenceCopy)
	if err != nil {
		return "", err
	}

	if !same {
		w.logger.WithField("destPath", referenceCopy).Debug("Copying reference to output folder")
		if err := CopyFile(job.Reference, referenceCopy); err != nil {
			return "", err
		}
	}

	w.updateStep("Opening source")
	source, err := OpenFrameSource(ctx, job.Source, config.FFmpegOptions)
	if err != nil {
		var cmdErr *commandError
		if errors.As(err, &cmdErr) {
			return cmdErr.output, err
		}
		return "", err
	}

	closed := false
	defer func() {
		if !closed {
			source.Close()
		}
	}()

	refs := newReferenceSet(w.logger, reference, highRes, config.HighResScale)
	count := source.Count()
	w.logger.Info("frame count: ", count)
	w.updateStep("Estimating flow")

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		frame, err := source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return source.Output(), err
		}

		ref, refHighRes, refTensor := refs.forSize(frame.Image.Bounds().Size())
		flow, err := w.poolWorker.estimator.Estimate(ctx, flowio.ImageToTensor(frame.Image), refTensor)
		if err != nil {
			return source.Output(), fmt.Errorf("estimating flow for frame %s: %w", frame.Name, err)
		}

		if err := outputs.write(frame.Name, flow, ref, refHighRes); err != nil {
			return "", fmt.Errorf("writing outputs for frame %s: %w", frame.Name, err)
		}

		if count > 0 {
			w.updateProgress(float64(i+1) / float64(count) * 100)
		}
	}

	closed = true
	if err := source.Close(); err != nil {
		return source.Output(), err
	}

	return "", nil
}

func (w *Worker) setJob(job *Job) {
	w.Lock()
	w.workerInfo.Active = job != nil
	w.workerInfo.Job = job
	w.workerInfo.Step = ""
	w.workerInfo.Progress = 0
	w.Unlock()
	w.sendUpdate()
}

func (w *Worker) updateStep(step string) {
	w.Lock()
	w.workerInfo.Step = step
	w.workerInfo.Progress = 0
	w.Unlock()
	w.sendUpdate()
}

func (w *Worker) updateProgress(progress float64) {
	w.Lock()
	w.workerInfo.Progress = progress
	w.Unlock()
	w.sendUpdate()
}

func (w *Worker) sendUpdate() {
	if w.hub == nil {
		return
	}

	packet := WsWorkerProgress{
		WsBaseMessage: WsBaseMessage{
			Type: "worker_progress",
		},
		WorkerInfo: w.GetInfo(),
	}

	w.hub.BroadcastMessage(packet)
}

func (w *Worker) GetInfo() WorkerInfo {
	w.RLock() // Shared lock for reading
	defer w.RUnlock()

	info := w.workerInfo
	if info.Job != nil {
		job := *info.Job
		info.Job = &job
	}
	return info
}
