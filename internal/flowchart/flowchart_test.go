package flowchart

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/e2g-ufsm/flowbot/internal/flow"
	"github.com/e2g-ufsm/flowbot/internal/models"
)

func testGraph(t *testing.T) *flow.Graph {
	t.Helper()
	graph, err := flow.NewGraph([]models.Step{
		{
			ID:      models.StepMainMenu,
			Message: "Escolha:\numa opção",
			Input:   models.InputMenu,
			Options: []models.StepOption{{Text: "Somar", Value: "sum"}},
			Next:    models.NextRef{Branches: map[string]string{"sum": "ask_number"}},
		},
		{
			ID:      "ask_number",
			Message: "Número:",
			Input:   models.InputNumber,
			Next:    models.NextRef{Step: "calc_sum"},
		},
		{
			ID:      "calc_sum",
			Message: "Calculando...",
			Optin:   &models.Optin{Method: "calculateSum", Inputs: []string{"ask_number"}},
			Next:    models.NextRef{Step: models.StepMainMenu},
		},
		{ID: models.StepRegisterName, Message: "Nome?", Input: models.InputText, Next: models.NextRef{Step: models.StepRegisterCPF}},
		{ID: models.StepRegisterCPF, Message: "CPF?", Input: models.InputText, Next: models.NextRef{Step: models.StepMainMenu}},
	})
	if err != nil {
		t.Fatalf("failed to build graph: %v", err)
	}
	return graph
}

func TestRender(t *testing.T) {
	out := Render(testGraph(t))

	if !strings.HasPrefix(out, "flowchart TD\n") {
		t.Errorf("expected flowchart header, got %q", out)
	}
	if !strings.Contains(out, `|"Somar"| ask_number`) {
		t.Errorf("expected labeled menu edge, got:\n%s", out)
	}
	if !strings.Contains(out, "[calculateSum]") {
		t.Errorf("expected optin method in label, got:\n%s", out)
	}
	if !strings.Contains(out, "Escolha:<br>uma opção") {
		t.Errorf("expected newline converted to <br>, got:\n%s", out)
	}
}

func TestExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowchart.md")
	if err := Export(testGraph(t), path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "```mermaid\n") || !strings.HasSuffix(content, "\n```") {
		t.Errorf("expected fenced mermaid block, got:\n%s", content)
	}
}
