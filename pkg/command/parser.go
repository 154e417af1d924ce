// Package command classifies raw message text into the assistant's
// command variants. Parsing is pure and deterministic: the same text,
// DM flag, and mention flag always produce the same Command.
package command

import (
	"regexp"
	"strings"
)

type Kind int

const (
	Unrecognized Kind = iota
	Greeting
	AIQuery
	Summarize
	TrelloAction
)

func (k Kind) String() string {
	switch k {
	case Greeting:
		return "greeting"
	case AIQuery:
		return "ai_query"
	case Summarize:
		return "summarize"
	case TrelloAction:
		return "trello"
	default:
		return "unrecognized"
	}
}

type TrelloVerb string

const (
	TrelloCreate  TrelloVerb = "create"
	TrelloMove    TrelloVerb = "move"
	TrelloComment TrelloVerb = "comment"
	TrelloBoards  TrelloVerb = "boards"
	TrelloLists   TrelloVerb = "lists"
	TrelloHelp    TrelloVerb = "help"
)

type TrelloCommand struct {
	Verb      TrelloVerb
	Title     string
	ListName  string
	CardID    string
	Comment   string
	BoardName string
}

type Command struct {
	Kind   Kind
	Query  string
	Trello TrelloCommand
}

// Parser evaluates an ordered rule list. Prefix commands are checked
// before the mention fallback, which is checked before greeting
// detection; this order is load-bearing and must not be rearranged.
type Parser struct {
	aiPrefix        string
	summarizePrefix string
	trelloPrefix    string
	greetings       map[string]bool
}

// mentionToken matches platform mention markup like <@U02ABC123>.
var mentionToken = regexp.MustCompile(`<@[A-Za-z0-9]+>\s*`)

// leadingAtName matches a plain-text leading mention like "@Pennyworth ".
var leadingAtName = regexp.MustCompile(`^@\S+\s+`)

func NewParser(greetingTokens []string) *Parser {
	greetings := make(map[string]bool, len(greetingTokens))
	for _, g := range greetingTokens {
		greetings[strings.ToLower(strings.TrimSpace(g))] = true
	}
	return &Parser{
		aiPrefix:        "!ai",
		summarizePrefix: "!summarize",
		trelloPrefix:    "!trello",
		greetings:       greetings,
	}
}

// WithPrefixes overrides the default command prefixes. Empty values
// keep the defaults.
func (p *Parser) WithPrefixes(ai, summarize, trello string) *Parser {
	if ai = strings.ToLower(strings.TrimSpace(ai)); ai != "" {
		p.aiPrefix = ai
	}
	if summarize = strings.ToLower(strings.TrimSpace(summarize)); summarize != "" {
		p.summarizePrefix = summarize
	}
	if trello = strings.ToLower(strings.TrimSpace(trello)); trello != "" {
		p.trelloPrefix = trello
	}
	return p
}

// Classify maps raw text onto exactly one Command. It is total: any
// input falls through to Unrecognized rather than failing.
func (p *Parser) Classify(rawText string, isDirect, wasMentioned bool) Command {
	text := mentionToken.ReplaceAllString(rawText, "")
	if wasMentioned {
		text = leadingAtName.ReplaceAllString(strings.TrimLeft(text, " \t"), "")
	}
	text = strings.TrimSpace(text)

	if rest, ok := p.matchPrefix(text, p.aiPrefix); ok {
		return Command{Kind: AIQuery, Query: rest}
	}
	if _, ok := p.matchPrefix(text, p.summarizePrefix); ok {
		return Command{Kind: Summarize}
	}
	if rest, ok := p.matchPrefix(text, p.trelloPrefix); ok {
		return Command{Kind: TrelloAction, Trello: parseTrello(rest)}
	}
	if wasMentioned {
		if text == "" {
			return Command{Kind: Greeting}
		}
		return Command{Kind: AIQuery, Query: text}
	}
	if isDirect && p.greetings[strings.ToLower(text)] {
		return Command{Kind: Greeting}
	}
	return Command{Kind: Unrecognized}
}

// matchPrefix accepts "!ai" and "!ai <rest>" but not "!aix".
func (p *Parser) matchPrefix(text, prefix string) (string, bool) {
	lower := strings.ToLower(text)
	if lower == prefix {
		return "", true
	}
	if strings.HasPrefix(lower, prefix+" ") {
		return strings.TrimSpace(text[len(prefix):]), true
	}
	return "", false
}

// parseTrello follows the original command grammar:
//
//	create <title> in <list>
//	move <card id> to <list>
//	comment <card id> <text>
//	boards
//	lists <board>
//
// Anything malformed collapses to the help verb; the engine answers it
// locally without touching the workflow service.
func parseTrello(rest string) TrelloCommand {
	parts := strings.SplitN(strings.TrimSpace(rest), " ", 2)
	verb := strings.ToLower(parts[0])
	remainder := ""
	if len(parts) > 1 {
		remainder = strings.TrimSpace(parts[1])
	}

	switch verb {
	case "create":
		if remainder == "" {
			return TrelloCommand{Verb: TrelloHelp}
		}
		if title, list, found := strings.Cut(remainder, " in "); found {
			return TrelloCommand{
				Verb:     TrelloCreate,
				Title:    strings.TrimSpace(title),
				ListName: strings.TrimSpace(list),
			}
		}
		return TrelloCommand{Verb: TrelloCreate, Title: remainder}
	case "move":
		if cardID, list, found := strings.Cut(remainder, " to "); found {
			cardID = strings.TrimSpace(cardID)
			list = strings.TrimSpace(list)
			if cardID != "" && list != "" {
				return TrelloCommand{Verb: TrelloMove, CardID: cardID, ListName: list}
			}
		}
		return TrelloCommand{Verb: TrelloHelp}
	case "comment":
		if cardID, text, found := strings.Cut(remainder, " "); found {
			cardID = strings.TrimSpace(cardID)
			text = strings.TrimSpace(text)
			if cardID != "" && text != "" {
				return TrelloCommand{Verb: TrelloComment, CardID: cardID, Comment: text}
			}
		}
		return TrelloCommand{Verb: TrelloHelp}
	case "boards":
		return TrelloCommand{Verb: TrelloBoards}
	case "lists":
		if remainder == "" {
			return TrelloCommand{Verb: TrelloHelp}
		}
		return TrelloCommand{Verb: TrelloLists, BoardName: remainder}
	default:
		return TrelloCommand{Verb: TrelloHelp}
	}
}
