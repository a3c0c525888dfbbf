// Package logging provides real-time console output for the orchestration
// and learning core. The audit record store is the durable history; this
// package exists for operators watching a live scheduler or training run.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Domain-derived logging methods ---
// Called by the orchestrator and environment after state changes commit.

// TaskSubmitted logs a new task entering the queue.
func (l *Logger) TaskSubmitted(taskID, taskType, priority string) {
	l.Debug("task_submitted", map[string]interface{}{
		"task":     taskID,
		"type":     taskType,
		"priority": priority,
	})
}

// TaskAssigned logs a task-to-worker assignment.
func (l *Logger) TaskAssigned(taskID, workerID string) {
	l.Info("task_assigned", map[string]interface{}{
		"task":   taskID,
		"worker": workerID,
	})
}

// TaskCompleted logs task completion.
func (l *Logger) TaskCompleted(taskID, workerID string, duration time.Duration) {
	l.Info("task_completed", map[string]interface{}{
		"task":     taskID,
		"worker":   workerID,
		"duration": duration.String(),
	})
}

// TaskFailed logs a task failure.
func (l *Logger) TaskFailed(taskID, workerID string, err error) {
	fields := map[string]interface{}{
		"task":   taskID,
		"worker": workerID,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error("task_failed", fields)
}

// TaskCancelled logs a cancellation.
func (l *Logger) TaskCancelled(taskID string) {
	l.Info("task_cancelled", map[string]interface{}{
		"task": taskID,
	})
}

// WorkerStuck logs a worker running past the health-check threshold.
func (l *Logger) WorkerStuck(workerID, taskID string, running time.Duration) {
	l.Warn("worker_stuck", map[string]interface{}{
		"worker":  workerID,
		"task":    taskID,
		"running": running.String(),
	})
}

// EpisodeEnd logs the end of a learning episode.
func (l *Logger) EpisodeEnd(agentID string, episode int, reward, exploration float64) {
	l.Info("episode_end", map[string]interface{}{
		"agent":       agentID,
		"episode":     episode,
		"reward":      reward,
		"exploration": exploration,
	})
}

// StepComplete logs one environment step.
func (l *Logger) StepComplete(agentID string, step int, reward float64, done bool) {
	l.Debug("step_complete", map[string]interface{}{
		"agent":  agentID,
		"step":   step,
		"reward": reward,
		"done":   done,
	})
}

// SessionEnd logs the end of a training session.
func (l *Logger) SessionEnd(sessionID string, episodes int, improvement float64, converged bool) {
	l.Info("session_end", map[string]interface{}{
		"session":     sessionID,
		"episodes":    episodes,
		"improvement": improvement,
		"converged":   converged,
	})
}
