package coordinator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/civicmind/civicmind/pkg/civic"
)

// Intervention answers checkpoints the conflict rules refuse to settle
// autonomously. Implementations may block on a human; the coordinator bounds
// them with the caller's context.
type Intervention interface {
	Decide(ctx context.Context, agent civic.AgentType, req *civic.Request, conflicts []civic.Conflict) (*civic.HumanDecision, error)
}

// AutoApprove approves every escalation. Test and headless deployments only;
// the approval is still recorded against the audit trail.
type AutoApprove struct{}

func (AutoApprove) Decide(ctx context.Context, agent civic.AgentType, req *civic.Request, conflicts []civic.Conflict) (*civic.HumanDecision, error) {
	return &civic.HumanDecision{
		Choice:    "approve",
		Approver:  "auto",
		Notes:     "auto-approve enabled",
		Timestamp: time.Now().UTC(),
	}, nil
}

// Terminal prompts an operator on the attached console. Answers other than
// approve/reject/defer count as defer.
type Terminal struct {
	In  io.Reader
	Out io.Writer
}

func (t *Terminal) Decide(ctx context.Context, agent civic.AgentType, req *civic.Request, conflicts []civic.Conflict) (*civic.HumanDecision, error) {
	fmt.Fprintf(t.Out, "\n[intervention] %s agent: %s at %s\n", agent, req.Type, req.Location)
	for _, c := range conflicts {
		fmt.Fprintf(t.Out, "  conflict (%s): %s\n", c.Kind, c.Description)
	}
	fmt.Fprint(t.Out, "approve/reject/defer> ")

	type answer struct {
		text string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(t.In).ReadString('\n')
		ch <- answer{strings.ToLower(strings.TrimSpace(line)), err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case a := <-ch:
		if a.err != nil {
			return nil, a.err
		}
		choice := a.text
		switch choice {
		case "approve", "reject":
		default:
			choice = "defer"
		}
		return &civic.HumanDecision{
			Choice:    choice,
			Approver:  "console",
			Timestamp: time.Now().UTC(),
		}, nil
	}
}
