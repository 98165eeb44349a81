// Package flow implements the conversation flow interpreter: the immutable
// step graph, the per-turn state machine, input validation, the optin
// side-effect dispatcher and the registration sub-flow.
package flow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/e2g-ufsm/flowbot/internal/models"
)

// Graph is the immutable, loaded-once collection of flow steps indexed by id.
type Graph struct {
	steps []models.Step
	index map[string]*models.Step
}

// NewGraph builds and validates a graph from an ordered list of steps.
func NewGraph(steps []models.Step) (*Graph, error) {
	g := &Graph{
		steps: steps,
		index: make(map[string]*models.Step, len(steps)),
	}
	for i := range steps {
		step := &g.steps[i]
		if err := step.Validate(); err != nil {
			return nil, err
		}
		if _, dup := g.index[step.ID]; dup {
			return nil, fmt.Errorf("duplicate step id %q", step.ID)
		}
		g.index[step.ID] = step
	}
	if err := g.checkReferences(); err != nil {
		return nil, err
	}
	return g, nil
}

// LoadGraph reads a flow definition file: a JSON array of step records.
func LoadGraph(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read flow definition", "error", err, "path", path)
		return nil, fmt.Errorf("failed to read flow definition %s: %w", path, err)
	}
	var steps []models.Step
	if err := json.Unmarshal(data, &steps); err != nil {
		slog.Error("Failed to parse flow definition", "error", err, "path", path)
		return nil, fmt.Errorf("failed to parse flow definition %s: %w", path, err)
	}
	g, err := NewGraph(steps)
	if err != nil {
		return nil, err
	}
	slog.Info("Flow definition loaded", "path", path, "steps", len(steps))
	return g, nil
}

// checkReferences verifies that the reserved steps exist and that every next
// target resolves to a defined step.
func (g *Graph) checkReferences() error {
	for _, required := range []string{models.StepMainMenu, models.StepRegisterName, models.StepRegisterCPF} {
		if _, ok := g.index[required]; !ok {
			return fmt.Errorf("flow definition missing required step %q", required)
		}
	}
	for i := range g.steps {
		step := &g.steps[i]
		for _, target := range step.Next.Targets() {
			if _, ok := g.index[target]; !ok {
				return fmt.Errorf("step %q references unknown step %q: %w", step.ID, target, models.ErrStepNotFound)
			}
		}
		if step.Input == models.InputMenu {
			for _, opt := range step.Options {
				if _, ok := step.Next.Branches[opt.Value]; !ok {
					return fmt.Errorf("step %q option %q has no branch in next mapping", step.ID, opt.Value)
				}
			}
		}
	}
	return nil
}

// CheckOptins warns about optin methods declared in the flow that have no
// registered handler. Unknown methods remain non-fatal at runtime, but a
// load-time warning catches typos early.
func (g *Graph) CheckOptins(registry *OptinRegistry) {
	for i := range g.steps {
		step := &g.steps[i]
		if step.Optin == nil {
			continue
		}
		if _, ok := registry.Get(step.Optin.Method); !ok {
			slog.Warn("Flow step declares unknown optin method", "step", step.ID, "method", step.Optin.Method)
		}
	}
}

// Step returns the step with the given id.
func (g *Graph) Step(id string) (*models.Step, bool) {
	step, ok := g.index[id]
	return step, ok
}

// Steps returns the ordered step list.
func (g *Graph) Steps() []models.Step { return g.steps }

// Len returns the number of steps in the graph.
func (g *Graph) Len() int { return len(g.steps) }
