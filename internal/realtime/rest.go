package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"coderun/internal/protocol"
)

type runSummary struct {
	ID        string            `json:"id"`
	Language  protocol.Language `json:"language"`
	Bytes     int               `json:"bytes"`
	Inputs    int               `json:"inputs"`
	ExitCode  *int              `json:"exitCode,omitempty"`
	StartedAt string            `json:"startedAt"`
}

type runDetail struct {
	runSummary
	Source   string              `json:"source"`
	Received []*protocol.Message `json:"received"`
}

func (r *MockRun) summary() runSummary {
	received := r.Received()
	inputs := 0
	for _, msg := range received {
		if msg.Type == protocol.KindInput {
			inputs++
		}
	}

	r.mu.Lock()
	code := r.exitCode
	r.mu.Unlock()

	return runSummary{
		ID:        r.ID,
		Language:  r.Request.Language,
		Bytes:     len(r.Request.Source),
		Inputs:    inputs,
		ExitCode:  code,
		StartedAt: r.StartedAt.Format(time.RFC3339Nano),
	}
}

func (m *MockRunner) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := m.Runs()
	out := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, run.summary())
	}
	writeJSON(w, http.StatusOK, out)
}

func (m *MockRunner) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := m.Run(r.PathValue("id"))
	if !ok {
		http.Error(w, `{"error":"run not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, runDetail{
		runSummary: run.summary(),
		Source:     run.Request.Source,
		Received:   run.Received(),
	})
}

func (m *MockRunner) handleKillRun(w http.ResponseWriter, r *http.Request) {
	run, ok := m.Run(r.PathValue("id"))
	if !ok {
		http.Error(w, `{"error":"run not found"}`, http.StatusNotFound)
		return
	}
	run.Kill()
	m.log.Info("run killed", "run", run.ID)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
