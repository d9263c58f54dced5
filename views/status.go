package views

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"
)

type JobRow struct {
	ID               int64
	Source           string
	Reference        string
	HighResReference string
	OutputPath       string
}

type WorkerRow struct {
	ID       int
	Active   bool
	Step     string
	Progress float64
	JobID    int64
}

type FailedRow struct {
	JobID  int64
	Source string
	Error  string
}

type StatusData struct {
	Model   string
	Jobs    []JobRow
	Workers []WorkerRow
	Failed  []FailedRow
}

// Status renders the dashboard. It refreshes itself from /ws pushes.
func Status(data StatusData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>flowarr</title></head><body>`)
		p.raw(`<h1>flowarr</h1><p>Model: `)
		p.text(data.Model)
		p.raw(`</p>`)

		p.raw(`<h2>Workers</h2><table id="workers"><tr><th>ID</th><th>State</th><th>Step</th><th>Progress</th></tr>`)
		for _, worker := range data.Workers {
			state := "idle"
			if worker.Active {
				state = fmt.Sprintf("job %d", worker.JobID)
			}
			p.raw(fmt.Sprintf(`<tr id="worker-%d"><td>%d</td><td>`, worker.ID, worker.ID))
			p.text(state)
			p.raw(`</td><td>`)
			p.text(worker.Step)
			p.raw(`</td><td>`)
			p.text(humanize.FtoaWithDigits(worker.Progress, 1) + "%")
			p.raw(`</td></tr>`)
		}
		p.raw(`</table>`)

		p.raw(`<h2>Queue (`)
		p.text(humanize.Comma(int64(len(data.Jobs))))
		p.raw(`)</h2><table id="queue"><tr><th>ID</th><th>Source</th><th>Reference</th><th>Output</th></tr>`)
		for _, job := range data.Jobs {
			p.raw(fmt.Sprintf(`<tr><td>%d</td><td>`, job.ID))
			p.text(job.Source)
			p.raw(`</td><td>`)
			p.text(job.Reference)
			if job.HighResReference != "" {
				p.raw(`<br>`)
				p.text(job.HighResReference)
			}
			p.raw(`</td><td>`)
			p.text(job.OutputPath)
			p.raw(`</td></tr>`)
		}
		p.raw(`</table>`)

		p.raw(`<h2>Failed</h2><table id="failed"><tr><th>Job</th><th>Source</th><th>Error</th></tr>`)
		for _, failed := range data.Failed {
			p.raw(fmt.Sprintf(`<tr><td>%d</td><td>`, failed.JobID))
			p.text(failed.Source)
			p.raw(`</td><td>`)
			p.text(failed.Error)
			p.raw(`</td></tr>`)
		}
		p.raw(`</table>`)

		p.raw(statusScript)
		p.raw(`</body></html>`)
		return p.err
	})
}

// printer stops writing after the first error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *printer) text(s string) {
	p.raw(templ.EscapeString(s))
}

const statusScript = `<script>
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (event) => {
	const msg = JSON.parse(event.data);
	if (msg.type === "worker_progress") {
		const row = document.getElementById("worker-" + msg.workerInfo.id);
		if (!row) return;
		row.cells[1].textContent = msg.workerInfo.active && msg.workerInfo.job ? "job " + msg.workerInfo.job.id : "idle";
		row.cells[2].textContent = msg.workerInfo.step;
		row.cells[3].textContent = msg.workerInfo.progress.toFixed(1) + "%";
	} else if (msg.type === "queue_update") {
		location.reload();
	}
};
</script>`
