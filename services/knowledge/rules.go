package knowledge

import (
	"strings"

	"github.com/tyson-yobot/command-center-sub002/models"
)

// ruleInput is what a fallback rule gets to look at: the lowercased query
// and the ranked candidates from retrieval
type ruleInput struct {
	loweredQuery string
	candidates   []*models.KnowledgeEntry
}

// answerRule is one step of the deterministic fallback chain. Rules are
// evaluated in order; the first match renders the reply.
type answerRule struct {
	name    string
	matches func(in ruleInput) bool
	render  func(in ruleInput) string
}

// keyword templates for the command center's known trouble spots

const voiceTemplate = "It sounds like you're having trouble with voice commands. " +
	"Make sure your microphone is enabled in the Command Center settings and that the " +
	"VoiceBot toggle is switched on. If the bot still doesn't respond, restarting the " +
	"voice engine from the Control Center usually clears it up."

const calendarTemplate = "For calendar sync issues, first check that your Google or " +
	"Outlook account is connected under Integrations. Disconnecting and reconnecting the " +
	"calendar integration forces a full re-sync and resolves most stuck-sync problems."

const scraperTemplate = "Lead scraper jobs can take a few minutes to complete. Check the " +
	"Lead Scraper panel for job status; if a job has been stuck for more than ten minutes, " +
	"cancel it and launch it again with the same filters."

const billingTemplate = "For billing and invoice questions, you can review your invoices " +
	"and payment history in the Billing tab. If something looks wrong with a charge, I can " +
	"open a support ticket so the billing team takes a look."

const closestMatchPrefix = "Here's the closest match I found in our knowledge base:\n\n"

const closestMatchSuffix = "\n\nIf that doesn't resolve it, I can open a support ticket for you."

const noMatchTemplate = "I'm sorry, I couldn't find anything in our knowledge base that " +
	"answers that. I can open a support ticket so a member of the team follows up with you."

// defaultAnswerRules returns the ordered fallback chain with its guaranteed
// final default
func defaultAnswerRules() []answerRule {
	return []answerRule{
		{
			name:    "voice_commands",
			matches: queryContainsAny("voice", "command"),
			render:  func(ruleInput) string { return voiceTemplate },
		},
		{
			name:    "calendar_sync",
			matches: queryContainsAny("calendar", "sync"),
			render:  func(ruleInput) string { return calendarTemplate },
		},
		{
			name:    "lead_scraper",
			matches: queryContainsAny("scrape", "scraper", "lead"),
			render:  func(ruleInput) string { return scraperTemplate },
		},
		{
			name:    "billing",
			matches: queryContainsAny("invoice", "billing", "payment", "charge"),
			render:  func(ruleInput) string { return billingTemplate },
		},
		{
			name: "closest_match",
			matches: func(in ruleInput) bool {
				return len(in.candidates) > 0
			},
			render: renderClosestMatch,
		},
		{
			name:    "no_match",
			matches: func(ruleInput) bool { return true },
			render:  func(ruleInput) string { return noMatchTemplate },
		},
	}
}

// renderClosestMatch surfaces the top candidate's content, honoring its
// override behavior: replace uses the content verbatim, everything else
// wraps it in the template.
func renderClosestMatch(in ruleInput) string {
	top := in.candidates[0]
	if top.OverrideBehavior == models.OverrideReplace {
		return top.Content
	}
	return closestMatchPrefix + top.Content + closestMatchSuffix
}

// evaluateRules walks the chain in order and renders the first matching
// rule. The chain always terminates because the final rule matches
// everything.
func evaluateRules(rules []answerRule, in ruleInput) (string, string) {
	for _, rule := range rules {
		if rule.matches(in) {
			return rule.render(in), rule.name
		}
	}
	// Unreachable with the default chain; kept for custom rule sets
	return noMatchTemplate, "no_match"
}

// queryContainsAny builds a predicate matching when the lowercased query
// contains any of the given keywords
func queryContainsAny(keywords ...string) func(in ruleInput) bool {
	return func(in ruleInput) bool {
		for _, kw := range keywords {
			if strings.Contains(in.loweredQuery, kw) {
				return true
			}
		}
		return false
	}
}
