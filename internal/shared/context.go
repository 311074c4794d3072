package shared

import "context"

type branchContextKey struct{}

// ContextWithBranch stores the authenticated branch name in context.
func ContextWithBranch(ctx context.Context, branch string) context.Context {
	return context.WithValue(ctx, branchContextKey{}, branch)
}

// BranchFromContext extracts the authenticated branch name from context.
func BranchFromContext(ctx context.Context) string {
	branch, _ := ctx.Value(branchContextKey{}).(string)
	return branch
}

// ActorFromContext names the caller for audit records.
func ActorFromContext(ctx context.Context) string {
	if branch := BranchFromContext(ctx); branch != "" {
		return "branch:" + branch
	}
	return "system"
}
