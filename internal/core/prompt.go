package core

import (
	"fmt"
	"strings"
)

// RetryStrategy controls how the prompt changes on a confidence-gated retry
type RetryStrategy string

const (
	// RetryRepeat re-sends the original prompt unchanged
	RetryRepeat RetryStrategy = "repeat"
	// RetryEmphasize adds a note about the previous low-confidence answer
	RetryEmphasize RetryStrategy = "emphasize"
)

// ParseRetryStrategy validates a configured strategy name
func ParseRetryStrategy(name string) (RetryStrategy, error) {
	switch RetryStrategy(strings.ToLower(strings.TrimSpace(name))) {
	case "", RetryRepeat:
		return RetryRepeat, nil
	case RetryEmphasize:
		return RetryEmphasize, nil
	default:
		return "", fmt.Errorf("%w: unknown retry strategy %q", ErrValidation, name)
	}
}

// PromptBuilder produces the system and user prompts for each round
type PromptBuilder struct {
	strategy RetryStrategy
	system   string
}

// NewPromptBuilder creates a prompt builder using the given retry strategy
func NewPromptBuilder(strategy RetryStrategy) *PromptBuilder {
	return &PromptBuilder{
		strategy: strategy,
		system:   buildSystemPrompt(),
	}
}

// System returns the instruction context shared by every round
func (b *PromptBuilder) System() string {
	return b.system
}

// Build returns the user prompt for a round. previous is nil on the first round.
func (b *PromptBuilder) Build(text string, previous *AnalysisAttempt) string {
	prompt := "Analyze the following email text:\n\n" + text
	if previous == nil || b.strategy != RetryEmphasize {
		return prompt
	}

	var note strings.Builder
	note.WriteString("\n\nA previous analysis of this email was not confident")
	if !previous.Malformed {
		fmt.Fprintf(&note, " (sentiment %q, classification %q, confidence %.0f)",
			labelOrRaw(string(previous.Sentiment), previous.RawSentiment),
			labelOrRaw(string(previous.Category), previous.RawCategory),
			previous.ReportedConfidence)
	}
	note.WriteString(". Focus on the single main action requested or information conveyed, ")
	note.WriteString("choose exactly one of the listed categories and sentiments verbatim, ")
	note.WriteString("and respond only with the JSON object.")
	return prompt + note.String()
}

func labelOrRaw(label, raw string) string {
	if label == string(SentimentUnknown) && raw != "" {
		return raw
	}
	return label
}

var categoryDefinitions = map[Category]string{
	CategoryProductStocking:      `Inquiries about product availability, requests for new products, specific product details, or restocking existing items. (e.g., "Do you carry brand X?", "Can we get more coffee?", "Need specs for model Y.")`,
	CategoryAdminCoordination:    `Internal or external communication regarding account setup, user access, contact information changes, scheduling meetings (unrelated to logistics/repairs), or general administrative tasks. (e.g., "Update our billing contact.", "Need access for a new employee.", "Can we schedule a call?")`,
	CategoryFeedbackComplaints:   `Expressing opinions about service, products, or experiences; suggestions for improvement; formal complaints not solely related to a broken item or incorrect bill. (e.g., "The delivery driver was rude.", "Love the new selection!", "Suggestion for your website.")`,
	CategoryMaintenanceRepairs:   `Reporting malfunctioning equipment, requesting repairs, scheduling maintenance visits, or following up on existing repair tickets. (e.g., "The coffee machine is broken.", "Need someone to fix the cooler.", "When is the technician coming?")`,
	CategoryBillingInvoices:      `Questions about charges, requests for invoices, disputes over bills, notifications of payment. (e.g., "Received an incorrect invoice.", "Where can I find my last bill?", "Payment has been sent.")`,
	CategoryGeneralFollowUps:     `Emails checking in on previous requests or communications where the original topic isn't being reiterated in detail, or simple status checks. (e.g., "Just checking in on my previous email.", "Any update on this?", "Following up on our conversation.")`,
	CategoryOperationalLogistics: `Coordination related to deliveries, pickups, installations, removals, specific event support, or on-site service timing *not* primarily about billing or maintenance. (e.g., "Confirming delivery for Tuesday.", "Need to reschedule the pickup.", "Kegerator removal request.")`,
}

var sentimentDefinitions = map[Sentiment]string{
	SentimentPositive: "Expresses satisfaction, agreement, confirmation, or gratitude.",
	SentimentNeutral:  "Informative, asking questions, making arrangements without strong emotion.",
	SentimentNegative: "Expresses dissatisfaction, complaints, urgency due to problems, or issues.",
}

type promptExample struct {
	email      string
	sentiment  Sentiment
	category   Category
	confidence int
	tags       []string
}

var promptExamples = []promptExample{
	{
		email:      "You guys have been so quick with helping us to get this fixed, thank you!! We have a few events happening in office that day (Monday, July 8th), but things should be in more of a lull around 10 AM. Would we be able to schedule the removal/delivery for 10:00 AM instead of 9:00 AM?",
		sentiment:  SentimentPositive,
		category:   CategoryOperationalLogistics,
		confidence: 95,
		tags:       []string{"scheduling", "delivery time change", "removal"},
	},
	{
		email:      "I hope everyone is doing well. Hate to be a squeaky wheel here but is there an update on the Pepsi machine? It appears the machine is still out of order and is not cooling.",
		sentiment:  SentimentNegative,
		category:   CategoryMaintenanceRepairs,
		confidence: 100,
		tags:       []string{"Pepsi machine", "cooling issue", "out of order", "update request"},
	},
	{
		email:      "I received another bill for a minimum charge. As the contract says below, we aren't held accountable for paying a minimum monthly sales amount.",
		sentiment:  SentimentNegative,
		category:   CategoryBillingInvoices,
		confidence: 100,
		tags:       []string{"minimum charge", "contract", "billing dispute"},
	},
	{
		email:      "The kegerator on the 7th floor is still onsite. We must get this removed by tomorrow morning. I've told our upper management this was gone, because over 2 weeks ago it was supposed to be but I've walked through the 7th floor and it's still there. Please let me know the plans to get this removed by tomorrow morning.",
		sentiment:  SentimentNegative,
		category:   CategoryOperationalLogistics,
		confidence: 90,
		tags:       []string{"kegerator", "removal", "urgent", "7th floor"},
	},
	{
		email:      "I hope all is well with you, I have a question about cold brew coffee. Do you carry Wander Bear Straight Black Organic Cold Brew Coffee?",
		sentiment:  SentimentNeutral,
		category:   CategoryProductStocking,
		confidence: 100,
		tags:       []string{"cold brew", "coffee", "organic", "product inquiry"},
	},
	{
		email:      "We are working on adding a hard wire connection to the kiosk. We already ran the wires and just need our IT department to reconfigure the network requirements. We will have this work completed before July 22nd and will let you know once it's completed.",
		sentiment:  SentimentNeutral,
		category:   CategoryOperationalLogistics,
		confidence: 75,
		tags:       []string{"kiosk", "network configuration", "installation update", "IT department"},
	},
}

func buildSystemPrompt() string {
	var b strings.Builder

	b.WriteString(`You are a meticulous and expert email analysis AI. Your primary task is to accurately analyze the core sentiment and classify the primary purpose of incoming emails based on predefined categories. You must adhere strictly to the specified output format.

**Analysis Steps (Internal Thought Process):**

1. **Read the entire email carefully** to understand the context and sender's main goal.
2. **Determine the overall sentiment:** Is the tone Positive, Neutral, or Negative?
3. **Identify the primary purpose:** Based on the definitions below, which category best represents the core reason for the email? If multiple topics are mentioned, focus on the main action requested or information conveyed.
4. **Assign a confidence score:** How clearly does the email fit into the chosen category? Use the guidance provided.
5. **Extract relevant tags:** Identify key entities, actions, or topics as concise tags.
6. **Format the output:** Construct the JSON object precisely as specified.

**Sentiment Categories:**

`)
	for _, s := range Sentiments {
		fmt.Fprintf(&b, "* `%s`: %s\n", s, sentimentDefinitions[s])
	}

	b.WriteString("\n**Classification Categories (Choose ONE):**\n\n")
	for _, c := range Categories {
		fmt.Fprintf(&b, "* `%s`: %s\n", c, categoryDefinitions[c])
	}

	b.WriteString(`
**Confidence Score Guidance:**

* ` + "`85-100`" + `: High confidence. The email clearly fits one category with minimal ambiguity.
* ` + "`60-84`" + `: Medium confidence. The email primarily fits one category, but has elements that could touch on another, or the intent is slightly unclear.
* ` + "`0-59`" + `: Low confidence. The email is ambiguous, vague, or could reasonably fit into multiple categories. Requires careful review.

**Tag Generation Guidance:**

* Extract 2-5 concise tags.
* Focus on key nouns (products, locations, specific issues), key verbs/actions (request, repair, schedule, remove), and important modifiers.
* Keep tags 1-3 words long.

**Output Format (Strictly JSON):**

Respond *only* with a JSON object adhering to this structure:
{
    "sentiment": "Positive|Neutral|Negative",
    "classification": "One of the 7 categories listed above",
    "confidence": 0-100,
    "tags": ["tag1", "tag2", "tag3"]
}

Here are some examples to guide your analysis:
`)

	for i, ex := range promptExamples {
		quoted := make([]string, len(ex.tags))
		for j, t := range ex.tags {
			quoted[j] = fmt.Sprintf("%q", t)
		}
		fmt.Fprintf(&b, "\nExample %d:\nEmail: %s\nAnalysis: {\n    \"sentiment\": %q,\n    \"classification\": %q,\n    \"confidence\": %d,\n    \"tags\": [%s]\n}\n",
			i+1, ex.email, ex.sentiment, ex.category, ex.confidence, strings.Join(quoted, ", "))
	}

	b.WriteString("\nOnly respond with the JSON object, nothing else.\n")
	return b.String()
}
