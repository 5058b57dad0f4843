// Package rbac holds the authorization and target rules for message actions.
package rbac

type Action string

// Rule decides who may perform an action on a message.
type Rule string

// Target is the identifier shape an action expects.
type Target string

const (
	ActionHide          Action = "hide"
	ActionUnhide        Action = "unhide"
	ActionUndo          Action = "undo"
	ActionToggleCheck   Action = "toggle_check"
	ActionTogglePin     Action = "toggle_pin"
	ActionSetQuantity   Action = "set_quantity"
	ActionSetItemURL    Action = "set_item_url"
	ActionUpdateContent Action = "update_content"
	ActionArchive       Action = "archive"
	ActionUnarchive     Action = "unarchive"
	ActionClearChecked  Action = "clear_checked"
)

const (
	// RuleMember allows any active member of the message's household.
	RuleMember Rule = "member"
	// RuleSender allows only the sender, who must also still be a member.
	RuleSender Rule = "sender"
)

const (
	TargetMany      Target = "message_ids"
	TargetOne       Target = "message_id"
	TargetOneOrMany Target = "message_id_or_ids"
	TargetThread    Target = "thread_id"
)

type Policy struct {
	Rule   Rule
	Target Target
}

var policies = map[Action]Policy{
	ActionHide:          {Rule: RuleMember, Target: TargetMany},
	ActionUnhide:        {Rule: RuleMember, Target: TargetMany},
	ActionUndo:          {Rule: RuleSender, Target: TargetMany},
	ActionToggleCheck:   {Rule: RuleMember, Target: TargetOne},
	ActionTogglePin:     {Rule: RuleMember, Target: TargetOne},
	ActionSetQuantity:   {Rule: RuleMember, Target: TargetOne},
	ActionSetItemURL:    {Rule: RuleMember, Target: TargetOne},
	ActionUpdateContent: {Rule: RuleSender, Target: TargetOne},
	ActionArchive:       {Rule: RuleMember, Target: TargetOneOrMany},
	ActionUnarchive:     {Rule: RuleMember, Target: TargetOneOrMany},
	ActionClearChecked:  {Rule: RuleMember, Target: TargetThread},
}

// PolicyFor returns the policy for a named action.
func PolicyFor(name string) (Action, Policy, bool) {
	action := Action(name)
	policy, ok := policies[action]
	return action, policy, ok
}

// Can reports whether a user passes rule given their membership and
// whether they sent the message.
func Can(rule Rule, isMember, isSender bool) bool {
	switch rule {
	case RuleMember:
		return isMember
	case RuleSender:
		return isMember && isSender
	default:
		return false
	}
}

// Actions lists every known action name.
func Actions() []Action {
	out := make([]Action, 0, len(policies))
	for action := range policies {
		out = append(out, action)
	}
	return out
}
