package main

type WsBaseMessage struct {
	Type string `json:"type"`
}

type WsWorkerProgress struct {
	WsBaseMessage
	WorkerInfo WorkerInfo `json:"workerInfo"`
}

type WsQueueUpdate struct {
	WsBaseMessage
	Jobs []Job `json:"jobs"`
}
