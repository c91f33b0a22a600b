package nats

import "time"

// Subject constants for HELIXFACTORY's messaging surface.
const (
	// SubjectWASMTask is where the executor dispatches WASM task
	// requests; browser/worker processes run in a queue group behind
	// it so any one of them claims a given request.
	SubjectWASMTask = "helix.tasks.wasm"

	// SubjectWASMPing is used to check whether any WASM worker is
	// currently connected, before paying for a full dispatch timeout.
	SubjectWASMPing = "helix.tasks.wasm.ping"

	// SubjectAgentStatus is the pattern for container-agent lifecycle
	// broadcasts (spawned, running, exited) consumed by the dashboard.
	SubjectAgentStatus = "helix.agent.%s.status"

	// SubjectAgentCrash is the pattern for abnormal-exit broadcasts,
	// separated from routine status so the dashboard can alert on it
	// without filtering every status update.
	SubjectAgentCrash = "helix.agent.%s.crash"

	// SubjectAllAgentStatus subscribes to every agent's status stream.
	SubjectAllAgentStatus = "helix.agent.*.status"

	// SubjectOrchestratorStatus publishes the orchestrator's own
	// idle/busy/error state for the dashboard.
	SubjectOrchestratorStatus = "helix.orchestrator.status"
)

// WASMTaskMessage is published to SubjectWASMTask to dispatch one
// task to the WASM worker pool.
type WASMTaskMessage struct {
	TaskID    string    `json:"task_id"`
	Ref       string    `json:"ref"`   // registry artifact reference (the agent.wasm path)
	Input     string    `json:"input"` // task text, the agent's sole argument
	Timestamp time.Time `json:"timestamp"`
}

// WASMResultMessage is the reply a worker publishes back for a
// WASMTaskMessage's reply subject.
type WASMResultMessage struct {
	Output   string `json:"output,omitempty"` // raw JSON emitted by the agent, if any
	Error    string `json:"error,omitempty"`
	WorkerID string `json:"worker_id,omitempty"`
}

// WASMPingMessage requests a liveness check of the worker pool.
type WASMPingMessage struct {
	Timestamp time.Time `json:"timestamp"`
}

// WASMPingReply answers a WASMPingMessage.
type WASMPingReply struct {
	Workers int `json:"workers"`
}

// AgentStatusMessage is a container agent's lifecycle broadcast.
type AgentStatusMessage struct {
	Ref       string    `json:"ref"`
	Status    string    `json:"status"` // spawned, running, exited
	ExitCode  int       `json:"exit_code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentCrashMessage is an abnormal-exit broadcast (non-zero exit, or
// the verify step's 139/126/127 classification) for the dashboard.
type AgentCrashMessage struct {
	Ref       string    `json:"ref"`
	ExitCode  int       `json:"exit_code"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// OrchestratorStatusMessage is the orchestrator's own periodic status
// broadcast for the dashboard.
type OrchestratorStatusMessage struct {
	Status       string    `json:"status"` // idle, busy, error
	ActiveTasks  int       `json:"active_tasks"`
	CurrentOp    string    `json:"current_op,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
