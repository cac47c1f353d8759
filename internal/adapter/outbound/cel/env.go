// Package cel provides a CEL-based condition evaluator for governance rules.
package cel

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/rule"
)

// NewGovernanceEnvironment creates a CEL environment exposing the execution
// context fields rule conditions may reference:
//
//   - agent_id, agent_type: identity of the acting agent
//   - action: the attempted operation name
//   - data: the action payload (map)
//   - user_id, user_roles: the human principal and their roles
//   - project_name, project_category, has_project: optional project info
//   - timestamp: when the action was attempted
func NewGovernanceEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("agent_id", cel.StringType),
		cel.Variable("agent_type", cel.StringType),
		cel.Variable("action", cel.StringType),
		cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("user_roles", cel.ListType(cel.StringType)),
		cel.Variable("project_name", cel.StringType),
		cel.Variable("project_category", cel.StringType),
		cel.Variable("has_project", cel.BoolType),
		cel.Variable("timestamp", cel.TimestampType),
	)
}

// BuildActivation maps an execution context onto the governance environment's
// variables. Absent project info yields empty strings and has_project=false.
func BuildActivation(execCtx rule.ExecutionContext) map[string]any {
	data := execCtx.Data
	if data == nil {
		data = map[string]any{}
	}
	roles := execCtx.User.Roles
	if roles == nil {
		roles = []string{}
	}

	activation := map[string]any{
		"agent_id":         execCtx.AgentID,
		"agent_type":       execCtx.AgentType,
		"action":           execCtx.Action,
		"data":             data,
		"user_id":          execCtx.User.ID,
		"user_roles":       roles,
		"project_name":     "",
		"project_category": "",
		"has_project":      false,
		"timestamp":        execCtx.Timestamp,
	}
	if execCtx.Project != nil {
		activation["project_name"] = execCtx.Project.Name
		activation["project_category"] = execCtx.Project.Category
		activation["has_project"] = true
	}
	return activation
}
