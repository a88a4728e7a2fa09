package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/attestia/attestia/internal/classify"
	"github.com/attestia/attestia/internal/tool"
	"github.com/attestia/attestia/pkg/types"
)

// ChecklistItem is one requirement in a framework checklist.
type ChecklistItem struct {
	ID          string `json:"id"`
	Requirement string `json:"requirement"`
	// Keywords, when any appear in supplied document text, mark the item
	// as addressed.
	Keywords []string `json:"-"`
	Covered  *bool    `json:"covered,omitempty"`
}

// checklists is the built-in requirement catalogue, keyed by framework.
var checklists = map[string][]ChecklistItem{
	"gdpr": {
		{ID: "gdpr-1", Requirement: "Document the lawful basis for each category of personal data processing.", Keywords: []string{"lawful basis", "legal basis", "consent"}},
		{ID: "gdpr-2", Requirement: "Describe the data subject rights process (access, rectification, erasure).", Keywords: []string{"data subject", "right to erasure", "right of access"}},
		{ID: "gdpr-3", Requirement: "Name the data protection officer or explain why none is required.", Keywords: []string{"data protection officer", "dpo"}},
		{ID: "gdpr-4", Requirement: "Document cross-border transfer safeguards.", Keywords: []string{"standard contractual clauses", "transfer", "adequacy"}},
		{ID: "gdpr-5", Requirement: "Define breach notification timelines (72 hours to the supervisory authority).", Keywords: []string{"breach notification", "72 hours", "supervisory authority"}},
	},
	"hipaa": {
		{ID: "hipaa-1", Requirement: "Identify all systems storing or transmitting protected health information.", Keywords: []string{"phi", "protected health information"}},
		{ID: "hipaa-2", Requirement: "Document administrative, physical and technical safeguards.", Keywords: []string{"safeguard", "access control", "encryption"}},
		{ID: "hipaa-3", Requirement: "Maintain business associate agreements for third-party processors.", Keywords: []string{"business associate", "baa"}},
		{ID: "hipaa-4", Requirement: "Define the breach notification procedure for affected individuals.", Keywords: []string{"breach notification", "notify"}},
	},
	"soc2": {
		{ID: "soc2-1", Requirement: "Document the change management process for production systems.", Keywords: []string{"change management", "change control"}},
		{ID: "soc2-2", Requirement: "Describe logical access provisioning and deprovisioning.", Keywords: []string{"access review", "provisioning", "offboarding"}},
		{ID: "soc2-3", Requirement: "Define incident response roles and escalation paths.", Keywords: []string{"incident response", "escalation"}},
		{ID: "soc2-4", Requirement: "Document vendor risk assessment procedures.", Keywords: []string{"vendor", "third party", "risk assessment"}},
		{ID: "soc2-5", Requirement: "Describe monitoring and alerting for security events.", Keywords: []string{"monitoring", "alerting", "siem"}},
	},
}

// ChecklistFrameworks returns the supported framework identifiers.
func ChecklistFrameworks() []string {
	return []string{"gdpr", "hipaa", "soc2"}
}

// ComplianceChecklist builds the compliance_checklist tool. Given a
// framework it returns the requirement checklist; when document text is
// supplied each item is additionally marked covered or not, and the text is
// run through the classifier so the result reports its sensitivity.
func ComplianceChecklist(classifier classify.Classifier) tool.Tool {
	return tool.Tool{
		Name:           "compliance_checklist",
		Description:    "Produce the requirement checklist for a compliance framework, optionally assessing a document against it.",
		Classification: tool.ClassInternal,
		Parameters: []tool.Parameter{
			{Name: "framework", Type: tool.TypeString, Required: true, Enum: ChecklistFrameworks(), Description: "Compliance framework."},
			{Name: "documentText", Type: tool.TypeString, Description: "Document text to assess against the checklist."},
		},
		Returns: "Checklist items, coverage marks when a document was supplied, and the document's sensitivity classification.",
		Handler: func(ctx context.Context, params map[string]any, inv types.InvocationContext) (tool.Result, error) {
			framework := params["framework"].(string)
			items, ok := checklists[framework]
			if !ok {
				return tool.Failure(fmt.Sprintf("unsupported framework %s", framework)), nil
			}

			out := make([]ChecklistItem, len(items))
			copy(out, items)

			data := map[string]any{
				"framework": framework,
				"items":     out,
			}

			if text, ok := params["documentText"].(string); ok && text != "" {
				lower := strings.ToLower(text)
				covered := 0
				for i := range out {
					hit := false
					for _, kw := range out[i].Keywords {
						if strings.Contains(lower, kw) {
							hit = true
							break
						}
					}
					v := hit
					out[i].Covered = &v
					if hit {
						covered++
					}
				}
				data["coveredCount"] = covered
				data["totalCount"] = len(out)

				if classifier != nil {
					cls, err := classifier.Classify(ctx, text)
					if err != nil {
						return tool.Result{}, fmt.Errorf("classify document: %w", err)
					}
					data["classification"] = cls
				}
			}

			return tool.Result{Success: true, Data: data}, nil
		},
	}
}
