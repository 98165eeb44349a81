package flow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/e2g-ufsm/flowbot/internal/models"
)

func TestNewGraphValid(t *testing.T) {
	graph, err := NewGraph(testSteps())
	if err != nil {
		t.Fatalf("NewGraph failed: %v", err)
	}
	if graph.Len() != len(testSteps()) {
		t.Errorf("expected %d steps, got %d", len(testSteps()), graph.Len())
	}
	if _, ok := graph.Step(models.StepMainMenu); !ok {
		t.Error("expected main menu step to resolve")
	}
	if _, ok := graph.Step("nope"); ok {
		t.Error("unexpected resolution of unknown step")
	}
}

func TestNewGraphRejectsDuplicateStep(t *testing.T) {
	steps := append(testSteps(), models.Step{
		ID:      models.StepMainMenu,
		Message: "duplicado",
	})
	if _, err := NewGraph(steps); err == nil {
		t.Fatal("expected error for duplicate step id")
	}
}

func TestNewGraphRejectsDanglingNext(t *testing.T) {
	steps := append(testSteps(), models.Step{
		ID:      "orphan",
		Message: "vai para lugar nenhum",
		Next:    models.NextRef{Step: "missing_step"},
	})
	if _, err := NewGraph(steps); err == nil {
		t.Fatal("expected error for dangling next reference")
	}
}

func TestNewGraphRequiresWellKnownSteps(t *testing.T) {
	var steps []models.Step
	for _, s := range testSteps() {
		if s.ID == models.StepRegisterCPF {
			continue
		}
		steps = append(steps, s)
	}
	if _, err := NewGraph(steps); err == nil {
		t.Fatal("expected error when a registration step is missing")
	}
}

func TestNewGraphRejectsMenuOptionWithoutBranch(t *testing.T) {
	steps := testSteps()
	for i := range steps {
		if steps[i].ID == models.StepMainMenu {
			steps[i].Options = append(steps[i].Options, models.StepOption{Text: "Extra", Value: "extra"})
		}
	}
	if _, err := NewGraph(steps); err == nil {
		t.Fatal("expected error for menu option without a branch")
	}
}

func TestLoadGraph(t *testing.T) {
	data := `[
		{"step": "main_menu", "message": "Escolha:", "input": "menu",
		 "options": [{"text": "Somar", "value": "sum"}],
		 "next": {"sum": "ask_number"}},
		{"step": "ask_number", "message": "Número:", "input": "number", "next": "main_menu"},
		{"step": "register_name", "message": "Nome?", "input": "text", "next": "register_cpf"},
		{"step": "register_cpf", "message": "CPF?", "input": "text", "next": "main_menu"}
	]`
	path := filepath.Join(t.TempDir(), "flow.json")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("failed to write flow file: %v", err)
	}

	graph, err := LoadGraph(path)
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	if graph.Len() != 4 {
		t.Fatalf("expected 4 steps, got %d", graph.Len())
	}
	menu, _ := graph.Step(models.StepMainMenu)
	if !menu.Next.IsMap() || menu.Next.Branches["sum"] != "ask_number" {
		t.Errorf("unexpected menu next %#v", menu.Next)
	}
	ask, _ := graph.Step("ask_number")
	if ask.Next.Step != models.StepMainMenu {
		t.Errorf("unexpected literal next %#v", ask.Next)
	}
}

func TestLoadGraphMissingFile(t *testing.T) {
	if _, err := LoadGraph(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing flow file")
	}
}

func TestCheckOptinsLogsUnknownMethod(t *testing.T) {
	steps := testSteps()
	for i := range steps {
		if steps[i].ID == "calc_sum" {
			steps[i].Optin = &models.Optin{Method: "unknownMethod", Inputs: []string{"ask_number"}}
		}
	}
	graph, err := NewGraph(steps)
	if err != nil {
		t.Fatalf("NewGraph failed: %v", err)
	}
	// Unknown methods are reported, not fatal.
	graph.CheckOptins(NewOptinRegistry())
}

func TestGraphStepsPreservesOrder(t *testing.T) {
	graph, err := NewGraph(testSteps())
	if err != nil {
		t.Fatalf("NewGraph failed: %v", err)
	}
	var ids []string
	for _, s := range graph.Steps() {
		ids = append(ids, s.ID)
	}
	if !strings.HasPrefix(strings.Join(ids, ","), models.StepMainMenu+",ask_number") {
		t.Errorf("unexpected step order %v", ids)
	}
}
