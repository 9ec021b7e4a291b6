package agent

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies an agent capability class.
type Type string

const (
	TypeRetrieval Type = "retrieval"
	TypeSynthesis Type = "synthesis"
	TypeFactCheck Type = "fact_check"
)

// KnownTypes returns all agent types the factory can construct.
func KnownTypes() []Type {
	return []Type{TypeRetrieval, TypeSynthesis, TypeFactCheck}
}

// Valid reports whether t is a known agent type.
func (t Type) Valid() bool {
	switch t {
	case TypeRetrieval, TypeSynthesis, TypeFactCheck:
		return true
	}
	return false
}

// Status is the lifecycle state of an agent instance.
type Status string

const (
	StatusIdle  Status = "idle"
	StatusBusy  Status = "busy"
	StatusError Status = "error"
)

// Capabilities describes what an agent can do.
type Capabilities struct {
	Inputs             []string `json:"inputs"`
	Outputs            []string `json:"outputs"`
	MaxConcurrentTasks int      `json:"max_concurrent_tasks"`
}

// Agent is one pooled worker instance.
//
// Status and CurrentTask are mutated only by the pool coordinator while
// holding its lock. CurrentTask is non-empty only while Status is
// StatusBusy.
type Agent struct {
	ID           string
	Type         Type
	Status       Status
	CurrentTask  string
	Capabilities Capabilities
	Config       map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ErrorReason  string

	// Worker is the capability implementation backing this agent.
	Worker Worker
}

// Worker marks a capability implementation that can back an agent.
// Concrete workers additionally implement one or more of the capability
// interfaces in capability.go.
type Worker interface {
	// AgentType returns the type this worker serves.
	AgentType() Type
}

// New constructs an agent record of the given type around a worker.
func New(t Type, worker Worker, caps Capabilities) (*Agent, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid agent type %q", t)
	}
	if worker == nil {
		return nil, fmt.Errorf("worker is required")
	}
	if worker.AgentType() != t {
		return nil, fmt.Errorf("worker serves type %q, want %q", worker.AgentType(), t)
	}
	now := time.Now()
	return &Agent{
		ID:           uuid.NewString(),
		Type:         t,
		Status:       StatusIdle,
		Capabilities: caps,
		Config:       map[string]string{},
		CreatedAt:    now,
		UpdatedAt:    now,
		Worker:       worker,
	}, nil
}

// Snapshot returns a copy of the agent's metadata safe to read without
// the pool lock. The Worker reference is omitted.
func (a *Agent) Snapshot() Agent {
	cp := *a
	cp.Worker = nil
	cp.Config = make(map[string]string, len(a.Config))
	for k, v := range a.Config {
		cp.Config[k] = v
	}
	return cp
}
