// Package persona renders all user-visible text in the assistant's
// fixed butler voice. Everything here is pure formatting: no I/O, no
// shared mutable state beyond the injected picker.
package persona

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// Responder formats outgoing text. The pick function selects among
// response variants and is injectable so tests stay deterministic.
type Responder struct {
	name string
	loc  *time.Location
	pick func(n int) int
	now  func() time.Time
}

func NewResponder(name string, loc *time.Location) *Responder {
	if loc == nil {
		loc = time.UTC
	}
	return &Responder{
		name: name,
		loc:  loc,
		pick: rand.IntN,
		now:  time.Now,
	}
}

// WithPicker replaces the variant selector. Tests pass a fixed picker.
func (r *Responder) WithPicker(pick func(n int) int) *Responder {
	r.pick = pick
	return r
}

// WithClock replaces the time source used for time-of-day greetings.
func (r *Responder) WithClock(now func() time.Time) *Responder {
	r.now = now
	return r
}

func (r *Responder) Name() string { return r.name }

var honorifics = map[string]bool{
	"mr": true, "ms": true, "mrs": true, "dr": true, "prof": true,
	"sir": true, "madam": true, "miss": true, "lord": true, "lady": true, "rev": true,
}

// PreferredName picks how to address a user: display name first, then
// the first name with any honorific skipped, then a single-token real
// name. Empty means no usable name was found.
func PreferredName(displayName, realName string) string {
	if name := strings.TrimSpace(displayName); name != "" {
		return name
	}
	name := strings.TrimSpace(realName)
	if name == "" {
		return ""
	}
	parts := strings.Fields(name)
	if len(parts) == 1 {
		return parts[0]
	}
	first := strings.ToLower(strings.TrimSuffix(parts[0], "."))
	if honorifics[first] && len(parts) > 1 {
		return parts[1]
	}
	return parts[0]
}

// Address renders the butler-style form of address, falling back to a
// platform mention when no name is known.
func (r *Responder) Address(userID, displayName, realName string) string {
	if name := PreferredName(displayName, realName); name != "" {
		return "Master " + name
	}
	return fmt.Sprintf("Master <@%s>", userID)
}

// TimeGreeting buckets the configured timezone's current hour:
// 5-12 morning, 12-17 afternoon, 17-22 evening, otherwise night.
func (r *Responder) TimeGreeting() string {
	hour := r.now().In(r.loc).Hour()
	switch {
	case hour >= 5 && hour < 12:
		return "Good morning"
	case hour >= 12 && hour < 17:
		return "Good afternoon"
	case hour >= 17 && hour < 22:
		return "Good evening"
	default:
		return "Good night"
	}
}

func (r *Responder) choose(variants []string) string {
	return variants[r.pick(len(variants))]
}

// Greet answers a plain greeting. Morning and evening get extra
// flavor lines on top of the shared variants.
func (r *Responder) Greet(address string) string {
	greeting := r.TimeGreeting()
	variants := []string{
		fmt.Sprintf("%s, %s. How might I be of service today?", greeting, address),
		fmt.Sprintf("%s, %s. I trust you're well. Is there anything you require?", greeting, address),
		fmt.Sprintf("%s, %s. Always a pleasure to be of assistance.", greeting, address),
		fmt.Sprintf("%s, %s. I've prepared your digital workspace. What shall we accomplish today?", greeting, address),
	}
	switch greeting {
	case "Good morning":
		variants = append(variants, fmt.Sprintf("%s, %s. I've prepared your usual breakfast: toast :bread:, coffee :coffee:, bandages :adhesive_bandage:.", greeting, address))
	case "Good evening", "Good night":
		variants = append(variants, fmt.Sprintf("%s, %s. Dare we hope the city treats you to an early evening?", greeting, address))
	}
	return r.choose(variants)
}

// Attend answers a bare mention carrying no query.
func (r *Responder) Attend(address string) string {
	return r.choose([]string{
		fmt.Sprintf("You rang, %s? How may I be of assistance?", address),
		fmt.Sprintf("At your service, %s. How might I help?", address),
		fmt.Sprintf("%s, I'm attending. What do you require?", address),
	})
}

// Unavailable is the generic fallback when the retry budget for an
// external service has been exhausted.
func (r *Responder) Unavailable(address string) string {
	return r.choose([]string{
		fmt.Sprintf("My sincerest apologies, %s. There seems to be a technical issue. Do try again shortly.", address),
		fmt.Sprintf("I've encountered an error, %s. Perhaps the machinery needs maintenance. Do try again in a moment.", address),
		fmt.Sprintf("Regrettably, I've hit a snag, %s. Shall I prepare some tea while we troubleshoot?", address),
	})
}

// Refused is the specific apology for permanent failures, distinct from
// the generic Unavailable fallback.
func (r *Responder) Refused(address string) string {
	return fmt.Sprintf("I'm afraid I could not complete that request, %s. It appears to be declined rather than delayed, so trying again will not help.", address)
}

// AskForQuery prompts when a command arrived without a question.
func (r *Responder) AskForQuery(address string) string {
	return fmt.Sprintf("How may I assist you, %s? Please provide a query after the !ai command.", address)
}

// NothingToSummarize answers !summarize on an empty context.
func (r *Responder) NothingToSummarize(address string) string {
	return fmt.Sprintf("There's no recent conversation to summarize, %s.", address)
}

// SystemPrompt is the persona instruction block prepended to every
// completion request.
func (r *Responder) SystemPrompt() string {
	return fmt.Sprintf(`You are %s, a distinguished AI butler serving a busy team chat.
Respond in the manner of a formal English butler: dignified, helpful, and
slightly sardonic. Address the user respectfully, keep answers concise,
and never break character.`, r.name)
}

// SummaryPrompt asks the completion service for a briefing of recent
// conversation in the persona's voice.
func (r *Responder) SummaryPrompt() string {
	return fmt.Sprintf(`Summarize the preceding conversation in the voice of %s, a formal,
dignified, slightly sardonic butler. Keep it under 150 words but
comprehensive: main topics, decisions, and action items.`, r.name)
}

// DescriptionPrompt asks the completion service to draft a short card
// description from a task title.
func (r *Responder) DescriptionPrompt() string {
	return `Write a brief, practical description for the following task title.
Two or three sentences, actionable, no preamble and no sign-off.`
}

// WelcomeMember greets a user who joined a channel and announces the
// assistant's commands.
func (r *Responder) WelcomeMember(address string) string {
	return fmt.Sprintf(
		"Good day, %s. Welcome aboard. :tophat:\n\n"+
			"I'm %s, your digital butler. Should you require anything:\n"+
			"• Summon me with `!ai [your question]` for assistance with inquiries\n"+
			"• Use `!trello` commands to manage your project organization\n"+
			"• Try `!summarize` in any channel for a concise briefing of recent discussions\n\n"+
			"As always, I remain at your service in all channels. Simply call when needed.",
		address, r.name)
}

// AnnounceMember introduces a new arrival to the configured social channel.
func (r *Responder) AnnounceMember(address string) string {
	return fmt.Sprintf(
		"*Announcing a new arrival* :tophat:\n\n"+
			"May I present %s, who has just joined our distinguished company.\n"+
			"I shall be attending to their orientation. Do make them feel welcome.",
		address)
}

// FarewellMember notes a departure.
func (r *Responder) FarewellMember(address string) string {
	return fmt.Sprintf("%s has taken their leave. I shall keep their quarters in order should they return.", address)
}

// ChannelLifecycle narrates channel created/archived/unarchived events.
func (r *Responder) ChannelLifecycle(event, channelName string) string {
	switch event {
	case "created":
		return fmt.Sprintf("A new room has been opened: #%s. I have dusted the shelves and stand ready to serve there.", channelName)
	case "archived":
		return fmt.Sprintf("The #%s room has been closed up and its affairs archived.", channelName)
	case "unarchived":
		return fmt.Sprintf("The #%s room has been reopened. I have aired it out accordingly.", channelName)
	default:
		return fmt.Sprintf("The #%s room has changed its disposition.", channelName)
	}
}

// WorkflowDisabled answers workflow commands when no board service is
// configured.
func (r *Responder) WorkflowDisabled(address string) string {
	return fmt.Sprintf("I'm afraid the task boards are not at my disposal at present, %s. Do ask the household staff to configure them.", address)
}

// CardCreated confirms a new card.
func (r *Responder) CardCreated(address, title, list, url string) string {
	msg := fmt.Sprintf("Very good, %s. I've created the card *%s* in *%s*.", address, title, list)
	if url != "" {
		msg += " " + url
	}
	return msg
}

// CardMoved confirms a card relocation.
func (r *Responder) CardMoved(address, cardID, list string) string {
	return fmt.Sprintf("As you wish, %s. Card `%s` now resides in *%s*.", address, cardID, list)
}

// CommentAdded confirms a card comment.
func (r *Responder) CommentAdded(address, cardID string) string {
	return fmt.Sprintf("Duly noted, %s. Your remark has been appended to card `%s`.", address, cardID)
}

// BoardInventory lists the visible boards.
func (r *Responder) BoardInventory(address string, names []string) string {
	if len(names) == 0 {
		return fmt.Sprintf("There are no boards in the estate at present, %s.", address)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Available Boards*, %s:\n", address)
	for _, n := range names {
		fmt.Fprintf(&sb, "• %s\n", n)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ListInventory lists the lists on one board.
func (r *Responder) ListInventory(address, board string, names []string) string {
	if len(names) == 0 {
		return fmt.Sprintf("The *%s* board appears to be quite empty, %s.", board, address)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Lists in %s*, %s:\n", board, address)
	for _, n := range names {
		fmt.Fprintf(&sb, "• %s\n", n)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// TrelloHelp lists the supported workflow commands.
func (r *Responder) TrelloHelp(address string) string {
	return fmt.Sprintf(
		"*Trello Commands*, %s:\n"+
			"• `!trello create [card title] in [list name]` - Create a new task card\n"+
			"• `!trello move [card ID] to [list name]` - Move a card to another list\n"+
			"• `!trello comment [card ID] [comment text]` - Add a comment to a card\n"+
			"• `!trello boards` - List available boards\n"+
			"• `!trello lists [board name]` - List the lists in a specific board",
		address)
}
