package approval

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/televibecode/televibe/internal/jobrunner"
)

// RequestApprovalFunc adapts the gate to jobrunner.RequestApprovalFunc: the
// runner supplies the job/type/description/details, this generates the
// approval id and opens it.
func (g *Gate) RequestApprovalFunc() jobrunner.RequestApprovalFunc {
	return func(ctx context.Context, req jobrunner.ApprovalRequest) (bool, string, error) {
		id := fmt.Sprintf("appr-%s", uuid.New().String()[:8])
		return g.Open(ctx, id, req.Job.ID, req.Job.SessionID, req.Job.ProjectID, req.Type, req.Description, req.Details)
	}
}
