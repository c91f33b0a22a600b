package executor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	nc "github.com/nats-io/nats.go"

	helixnats "github.com/HELIXFACTORY/internal/nats"
)

// startTestNATS boots an in-process NATS server on an ephemeral port
// for wasm executor tests, exactly the embedded-server pattern
// cmd/helixfactory's serve command uses in production.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &server.Options{Port: -1, NoLog: true, NoSigs: true}
	srv, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("failed to create test NATS server: %v", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("test NATS server did not become ready in time")
	}
	t.Cleanup(srv.Shutdown)
	return srv.ClientURL()
}

func TestWASMExecutorDispatchAndReply(t *testing.T) {
	url := startTestNATS(t)

	workerConn, err := nc.Connect(url)
	if err != nil {
		t.Fatalf("failed to connect worker: %v", err)
	}
	defer workerConn.Close()

	sub, err := workerConn.Subscribe(helixnats.SubjectWASMTask, func(msg *nc.Msg) {
		var task helixnats.WASMTaskMessage
		if err := json.Unmarshal(msg.Data, &task); err != nil {
			return
		}
		reply := helixnats.WASMResultMessage{Output: `{"result": 89}`, WorkerID: "worker-1"}
		data, _ := json.Marshal(reply)
		_ = workerConn.Publish(msg.Reply, data)
	})
	if err != nil {
		t.Fatalf("failed to subscribe worker: %v", err)
	}
	defer sub.Unsubscribe()

	client, err := helixnats.NewClient(url, "executor-test")
	if err != nil {
		t.Fatalf("failed to connect executor client: %v", err)
	}
	defer client.Close()

	exec := NewWASMExecutor(client, 2*time.Second)
	result, err := exec.Run(context.Background(), "fib-agent", "fib(11)", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Errorf("expected success, got %+v", result)
	}
	if result.Stdout != `{"result": 89}` {
		t.Errorf("unexpected stdout: %q", result.Stdout)
	}
}

func TestWASMExecutorDispatchTimesOutWithNoWorkers(t *testing.T) {
	url := startTestNATS(t)

	client, err := helixnats.NewClient(url, "executor-test")
	if err != nil {
		t.Fatalf("failed to connect executor client: %v", err)
	}
	defer client.Close()

	exec := NewWASMExecutor(client, 200*time.Millisecond)
	result, err := exec.Run(context.Background(), "fib-agent", "fib(11)", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Error("expected failure when no worker answers")
	}
}

func TestWASMExecutorPingReflectsWorkerPresence(t *testing.T) {
	url := startTestNATS(t)

	client, err := helixnats.NewClient(url, "executor-test")
	if err != nil {
		t.Fatalf("failed to connect executor client: %v", err)
	}
	defer client.Close()

	exec := NewWASMExecutor(client, time.Second)
	if exec.Ping(context.Background()) {
		t.Error("expected Ping to report no workers before any subscriber connects")
	}

	workerConn, err := nc.Connect(url)
	if err != nil {
		t.Fatalf("failed to connect worker: %v", err)
	}
	defer workerConn.Close()

	sub, err := workerConn.Subscribe(helixnats.SubjectWASMPing, func(msg *nc.Msg) {
		reply := helixnats.WASMPingReply{Workers: 1}
		data, _ := json.Marshal(reply)
		_ = workerConn.Publish(msg.Reply, data)
	})
	if err != nil {
		t.Fatalf("failed to subscribe worker: %v", err)
	}
	defer sub.Unsubscribe()

	if !exec.Ping(context.Background()) {
		t.Error("expected Ping to report a worker once one is subscribed")
	}
}
