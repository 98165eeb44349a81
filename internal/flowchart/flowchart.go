// Package flowchart renders a flow graph as a Mermaid diagram.
package flowchart

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/e2g-ufsm/flowbot/internal/flow"
	"github.com/e2g-ufsm/flowbot/internal/models"
)

// DefaultFileName is where Export writes the diagram.
const DefaultFileName = "flowchart.md"

// Render produces a Mermaid "flowchart TD" diagram of the graph. Menu steps
// get one labeled edge per option; steps with an optin carry its method name
// in the node label.
func Render(graph *flow.Graph) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")

	for _, step := range graph.Steps() {
		label := nodeLabel(&step)

		switch {
		case step.Input == models.InputMenu:
			for _, opt := range step.Options {
				target := step.Next.Branches[opt.Value]
				fmt.Fprintf(&b, "  %s(%q) --> |%q| %s\n", step.ID, label, opt.Text, target)
			}
		case step.Optin != nil:
			fmt.Fprintf(&b, "  %s[%q] --> %s\n", step.ID, label+"<br>["+step.Optin.Method+"]", step.Next.Step)
		default:
			fmt.Fprintf(&b, "  %s[%q] --> %s\n", step.ID, label, step.Next.Step)
		}
	}

	return b.String()
}

// Export writes the diagram to path inside a fenced mermaid block. An empty
// path uses DefaultFileName.
func Export(graph *flow.Graph, path string) error {
	if path == "" {
		path = DefaultFileName
	}
	content := "```mermaid\n" + Render(graph) + "\n```"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write flowchart to %s: %w", path, err)
	}
	slog.Info("Flowchart exported", "path", path)
	return nil
}

func nodeLabel(step *models.Step) string {
	if step.Message == "" {
		return step.ID
	}
	return strings.ReplaceAll(step.Message, "\n", "<br>")
}
