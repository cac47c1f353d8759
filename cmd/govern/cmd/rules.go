package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/rule"
)

var (
	addRuleName      string
	addRuleType      string
	addRuleScope     string
	addRuleCondition string
	addRuleAction    string
	addRulePriority  int
	addRuleDisabled  bool
	addRuleDesc      string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List, add, and remove governance rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all rules in the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		deps, closeFn, err := buildRuntime(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		rules, err := deps.admin.List(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tSCOPE\tPRIORITY\tENABLED\tVERSION\tACTION")
		for _, r := range rules {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%t\t%s\t%s\n",
				r.ID, r.Name, r.Type, r.Scope, r.Priority, r.Enabled,
				r.Metadata.Version, r.Action)
		}
		return w.Flush()
	},
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a rule to the store",
	Long: `Add a rule to the store.

Conditions are CEL expressions over the governance environment
(agent_id, agent_type, action, data, user_id, user_roles, project_name,
project_category, has_project, timestamp). Actions are one of
"allow", "deny", "log:<message>", "modify:<hint>", "notify:<message>".

Example:
  govern rules add --name "Block prod deletes" --type security --scope project \
    --condition 'action == "delete" && project_category == "production"' \
    --action deny --priority 99`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		deps, closeFn, err := buildRuntime(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		created, err := deps.admin.AddRule(ctx, rule.Rule{
			Name:      addRuleName,
			Type:      rule.Type(addRuleType),
			Scope:     rule.Scope(addRuleScope),
			Condition: addRuleCondition,
			Action:    addRuleAction,
			Priority:  addRulePriority,
			Enabled:   !addRuleDisabled,
			Metadata:  rule.Metadata{Description: addRuleDesc},
		})
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(created, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var rulesRemoveCmd = &cobra.Command{
	Use:   "remove <rule-id>",
	Short: "Remove a rule from the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		deps, closeFn, err := buildRuntime(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := deps.admin.RemoveRule(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("removed rule %s\n", args[0])
		return nil
	},
}

func init() {
	rulesAddCmd.Flags().StringVar(&addRuleName, "name", "", "rule name (required)")
	rulesAddCmd.Flags().StringVar(&addRuleType, "type", string(rule.TypeValidation), "rule type (validation/mutation/behavior/security)")
	rulesAddCmd.Flags().StringVar(&addRuleScope, "scope", string(rule.ScopeGlobal), "rule scope (global/project/agent/session)")
	rulesAddCmd.Flags().StringVar(&addRuleCondition, "condition", "true", "condition expression")
	rulesAddCmd.Flags().StringVar(&addRuleAction, "action", "allow", "action expression")
	rulesAddCmd.Flags().IntVar(&addRulePriority, "priority", 50, "priority 1-100, higher runs first")
	rulesAddCmd.Flags().BoolVar(&addRuleDisabled, "disabled", false, "create the rule disabled")
	rulesAddCmd.Flags().StringVar(&addRuleDesc, "description", "", "rule description")
	_ = rulesAddCmd.MarkFlagRequired("name")

	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesAddCmd)
	rulesCmd.AddCommand(rulesRemoveCmd)
	rootCmd.AddCommand(rulesCmd)
}
