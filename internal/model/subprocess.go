package model

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// subprocessModel runs a serialized artifact behind a child process
// speaking line-delimited JSON on stdin/stdout: one request
// {"features": {...}} per line, one reply {"prediction": x} or
// {"error": "..."} per line. The child lives as long as the artifact stays
// cached.
type subprocessModel struct {
	path string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	enc    *json.Encoder
	stdout *bufio.Scanner
}

func newSubprocessModel(spec modelSpec, path string) (*subprocessModel, error) {
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("model artifact %s has empty argv", path)
	}

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin for %s: %w", path, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout for %s: %w", path, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start model process for %s: %w", path, err)
	}

	return &subprocessModel{
		path:   path,
		cmd:    cmd,
		stdin:  stdin,
		enc:    json.NewEncoder(stdin),
		stdout: bufio.NewScanner(stdout),
	}, nil
}

type subprocessRequest struct {
	Features map[string]any `json:"features"`
}

type subprocessReply struct {
	Prediction *float64 `json:"prediction"`
	Error      string   `json:"error"`
}

func (m *subprocessModel) Predict(features map[string]any) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enc.Encode(subprocessRequest{Features: features}); err != nil {
		return 0, fmt.Errorf("failed to send features to %s: %w", m.path, err)
	}
	if !m.stdout.Scan() {
		if err := m.stdout.Err(); err != nil {
			return 0, fmt.Errorf("failed to read prediction from %s: %w", m.path, err)
		}
		return 0, fmt.Errorf("model process for %s closed its output", m.path)
	}

	var reply subprocessReply
	if err := json.Unmarshal(m.stdout.Bytes(), &reply); err != nil {
		return 0, fmt.Errorf("invalid reply from %s: %w", m.path, err)
	}
	if reply.Error != "" {
		return 0, fmt.Errorf("model process for %s reported: %s", m.path, reply.Error)
	}
	if reply.Prediction == nil {
		return 0, fmt.Errorf("model process for %s replied without a prediction", m.path)
	}
	return *reply.Prediction, nil
}

// Close shuts the child down by closing its stdin and waiting.
func (m *subprocessModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.stdin.Close(); err != nil {
		m.cmd.Process.Kill()
		m.cmd.Wait()
		return err
	}
	return m.cmd.Wait()
}
