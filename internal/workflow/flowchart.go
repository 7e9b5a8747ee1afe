package workflow

import (
	"fmt"
	"strings"

	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
)

// BuildFlowChart renders the workflow's steps as a mermaid flow chart.
func BuildFlowChart(wf *domain.Workflow) string {
	var sb strings.Builder

	startClass := "fill:#5568FE,stroke:#3346FF,stroke-width:2px,color:#fff,stroke-dasharray: 4 2,rx:10,ry:10;"
	doneClass := "fill:#4ECDC4,stroke:#1F9C8C,stroke-width:2px,color:#fff,stroke-dasharray: 4 2,rx:10,ry:10;"
	trashClass := "fill:#FF6B6B,stroke:#C53030,stroke-width:2px,color:#fff,stroke-dasharray: 4 2,rx:10,ry:10;"
	normalClass := "fill:#F0F4F8,stroke:#B0C4DE,stroke-width:1px,color:#333,rx:10,ry:10;"

	sb.WriteString("flowchart TD\n")

	for _, st := range wf.States {
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", nodeID(st), st.Name))
	}
	for _, step := range wf.Steps {
		from, _ := wf.State(step.FromStateID)
		to, _ := wf.State(step.ToStateID)
		if from == nil || to == nil {
			continue
		}
		if step.Name != "" {
			sb.WriteString(fmt.Sprintf("    %s -->|%s| %s\n", nodeID(*from), step.Name, nodeID(*to)))
		} else {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", nodeID(*from), nodeID(*to)))
		}
	}

	sb.WriteString(fmt.Sprintf("    classDef startClass %s\n", startClass))
	sb.WriteString(fmt.Sprintf("    classDef doneClass %s\n", doneClass))
	sb.WriteString(fmt.Sprintf("    classDef trashClass %s\n", trashClass))
	sb.WriteString(fmt.Sprintf("    classDef normalClass %s\n", normalClass))

	for _, st := range wf.States {
		switch st.ID {
		case wf.StartStateID:
			sb.WriteString(fmt.Sprintf("    class %s startClass;\n", nodeID(st)))
		case wf.EndStateID:
			sb.WriteString(fmt.Sprintf("    class %s doneClass;\n", nodeID(st)))
		case wf.TrashStateID:
			sb.WriteString(fmt.Sprintf("    class %s trashClass;\n", nodeID(st)))
		default:
			sb.WriteString(fmt.Sprintf("    class %s normalClass;\n", nodeID(st)))
		}
	}

	return sb.String()
}

func nodeID(st domain.WorkflowState) string {
	return fmt.Sprintf("s%d", st.ID)
}
