package assistant

import (
	"fmt"
	"sort"
	"strings"
)

// actionDirectives maps intent keywords to imperative tool instructions. The
// slice order is the tie-break priority: the first group whose keyword
// matches the label or task wins.
var actionDirectives = []struct {
	keywords  []string
	directive string
}{
	{[]string{"draft"}, "ACTION REQUIRED: Create a draft email using the draft_email tool."},
	{[]string{"send"}, "ACTION REQUIRED: Send an email using the send_email tool."},
	{[]string{"create", "schedule", "add"}, "ACTION REQUIRED: Create a calendar event using the create_event tool."},
	{[]string{"update", "modify", "change"}, "ACTION REQUIRED: Update the item using the appropriate update tool."},
	{[]string{"delete", "remove", "cancel"}, "ACTION REQUIRED: Delete/cancel the item using the appropriate delete tool."},
	{[]string{"share"}, "ACTION REQUIRED: Share the file using the share_file tool."},
}

// BuildContextualQuery converts the original query and its intent into the
// action-explicit instruction handed to domain adapters. Deterministic: no
// model calls, stable entity ordering, fixed directive priority.
func BuildContextualQuery(originalQuery string, intent *StructuredIntent) string {
	directive := actionDirective(intent.Label, intent.Task)

	var b strings.Builder
	fmt.Fprintf(&b, "ORIGINAL USER REQUEST: %s\n\n", originalQuery)
	if directive != "" {
		b.WriteString(directive)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "CONTEXT FROM CONVERSATION HISTORY:\n%s\n\n", intent.ContextFromHistory)

	b.WriteString("EXTRACTED ENTITIES AND PARAMETERS:\n")
	for _, key := range sortedKeys(intent.Entities) {
		fmt.Fprintf(&b, "- %s: %v\n", key, intent.Entities[key])
	}

	if len(intent.TaskParameters) > 0 {
		b.WriteString("\nTASK PARAMETERS:\n")
		for _, key := range sortedKeys(intent.TaskParameters) {
			fmt.Fprintf(&b, "- %s: %v\n", key, intent.TaskParameters[key])
		}
	}

	b.WriteString(`
IMPORTANT INSTRUCTIONS:
1. You MUST perform the action, not just describe it
2. Use the tools available to you to complete the task
3. Extract all necessary parameters from the context above
4. If this is a write operation (create/send/draft/update/delete), you MUST call the appropriate tool
5. Return the actual result of the operation, including IDs, confirmation, etc.
`)

	return b.String()
}

func actionDirective(label, task string) string {
	for _, group := range actionDirectives {
		for _, kw := range group.keywords {
			if strings.Contains(label, kw) || strings.Contains(task, kw) {
				return group.directive
			}
		}
	}
	return ""
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
