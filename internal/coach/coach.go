// Package coach answers free-form questions about a player's recent form
// and the ladder meta. A cheap model classifies the question into a
// category plus the tables it needs, the matching tables are assembled
// into a context, and an expert model writes the answer.
package coach

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"meta-analyzer/internal/analytics"
	"meta-analyzer/internal/report"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Category is the coarse topic of a question
type Category string

const (
	CategoryUser    Category = "user"
	CategoryMatchup Category = "matchup"
	CategoryCard    Category = "card"
	CategoryMeta    Category = "meta"
	CategoryOther   Category = "other"
)

// Categories lists every valid category
var Categories = []Category{CategoryUser, CategoryMatchup, CategoryCard, CategoryMeta, CategoryOther}

// Need names one table the answer depends on
type Need string

const (
	NeedUserSummary         Need = "USER_SUMMARY"
	NeedUserDeckSummary     Need = "USER_DECK_SUMMARY"
	NeedUserMatchupSummary  Need = "USER_MATCHUP_SUMMARY"
	NeedUserCardSummary     Need = "USER_CARD_SUMMARY"
	NeedOpponentCardSummary Need = "OPPONENT_CARD_SUMMARY"
	NeedMetaDeckSummary     Need = "META_DECK_SUMMARY"
	NeedMetaDeckMatchups    Need = "META_DECK_MATCHUPS"
	NeedSendAll             Need = "SEND_ALL"
)

// Needs lists every valid data need
var Needs = []Need{
	NeedUserSummary, NeedUserDeckSummary, NeedUserMatchupSummary,
	NeedUserCardSummary, NeedOpponentCardSummary,
	NeedMetaDeckSummary, NeedMetaDeckMatchups, NeedSendAll,
}

// DefaultNeeds is used when the classifier names a category but no valid needs
var DefaultNeeds = map[Category][]Need{
	CategoryUser:    {NeedUserSummary, NeedUserDeckSummary},
	CategoryMatchup: {NeedUserMatchupSummary, NeedMetaDeckMatchups},
	CategoryCard:    {NeedUserCardSummary, NeedOpponentCardSummary},
	CategoryMeta:    {NeedMetaDeckSummary, NeedMetaDeckMatchups},
	CategoryOther:   {NeedSendAll},
}

const (
	// LowDataGames is the player sample below which answers carry a warning
	LowDataGames = 20

	// MaxTablesJSON caps the serialized tables handed to the expert
	MaxTablesJSON = 4000

	DefaultClassifierModel = "gemini-2.5-flash-lite"
	DefaultExpertModel     = "gemini-2.5-flash"

	classifierMaxTokens = 300
	expertMaxTokens     = 700
	deckLinesInContext  = 5
)

// Prompt is one completion request
type Prompt struct {
	Model     string
	System    string
	User      string
	MaxTokens int
}

// LLM generates a completion for a prompt
type LLM interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Classification is the classifier's verdict after validation
type Classification struct {
	Category Category `json:"category"`
	Needs    []Need   `json:"data_needs"`
}

func (c Classification) has(needs ...Need) bool {
	for _, n := range needs {
		if slices.Contains(c.Needs, n) {
			return true
		}
	}
	return false
}

// Data is everything the coach may draw on
type Data struct {
	Player *analytics.Report
	Meta   report.Tables
}

// Games returns the number of player games behind the data
func (d Data) Games() int {
	if d.Player == nil {
		return 0
	}
	return d.Player.Summary.Games
}

// Context is the material assembled for the expert
type Context struct {
	Text   string
	Tables map[string]any
}

// Answer is the coach's reply plus how it was reached
type Answer struct {
	Classification Classification
	Warning        string
	Context        Context
	Text           string
	Notes          []string
}

// Coach runs the classify, prepare, check, answer pipeline
type Coach struct {
	llm             LLM
	logger          *zap.Logger
	ClassifierModel string
	ExpertModel     string
}

// New creates a Coach backed by llm
func New(llm LLM, logger *zap.Logger) *Coach {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coach{
		llm:             llm,
		logger:          logger.Named("coach"),
		ClassifierModel: DefaultClassifierModel,
		ExpertModel:     DefaultExpertModel,
	}
}

const classifierSystemPrompt = `You route Clash Royale coaching questions.
Reply with a single JSON object and nothing else:
{"category": "<category>", "data_needs": ["<NEED>", ...]}

Categories:
- user: the player's own overall results or decks
- matchup: how a deck or archetype fares against another
- card: performance of specific cards, the player's or their opponents'
- meta: the ladder meta as a whole, independent of the player
- other: anything else

Data needs:
- USER_SUMMARY: the player's games, wins, losses and win rate
- USER_DECK_SUMMARY: the player's results per deck archetype
- USER_MATCHUP_SUMMARY: the player's results per opponent archetype
- USER_CARD_SUMMARY: the player's results per card they played
- OPPONENT_CARD_SUMMARY: results against each opponent card
- META_DECK_SUMMARY: ladder games, win rate and meta share per archetype
- META_DECK_MATCHUPS: ladder win rates for each archetype pair
- SEND_ALL: everything`

func classifierUserPrompt(question string) string {
	return fmt.Sprintf("Classify the following question. Respond in JSON only.\n\nUser question:\n\"\"\"%s\"\"\"\n", question)
}

var fallback = Classification{Category: CategoryOther, Needs: []Need{NeedSendAll}}

// Classify asks the classifier model for a category and data needs. It
// never fails: model, parse or validation errors fall back to other with
// SEND_ALL, and the returned note says why.
func (c *Coach) Classify(ctx context.Context, question string) (Classification, string) {
	raw, err := c.llm.Generate(ctx, Prompt{
		Model:     c.ClassifierModel,
		System:    classifierSystemPrompt,
		User:      classifierUserPrompt(question),
		MaxTokens: classifierMaxTokens,
	})
	if err != nil {
		c.logger.Warn("classifier call failed", zap.Error(err))
		return fallback, fmt.Sprintf("classify: model error, fallback (%v)", err)
	}
	return parseClassification(raw)
}

func parseClassification(raw string) (Classification, string) {
	var parsed struct {
		Category string   `json:"category"`
		Needs    []string `json:"data_needs"`
	}
	if err := json.Unmarshal([]byte(stripFence(raw)), &parsed); err != nil {
		return fallback, "classify: unparseable reply, fallback"
	}

	cat := Category(parsed.Category)
	if !slices.Contains(Categories, cat) {
		return fallback, fmt.Sprintf("classify: invalid category %q, fallback", parsed.Category)
	}

	var needs []Need
	for _, n := range parsed.Needs {
		need := Need(strings.ToUpper(strings.TrimSpace(n)))
		if slices.Contains(Needs, need) && !slices.Contains(needs, need) {
			needs = append(needs, need)
		}
	}
	if len(needs) == 0 {
		needs = slices.Clone(DefaultNeeds[cat])
	}

	cls := Classification{Category: cat, Needs: needs}
	return cls, fmt.Sprintf("classify: %s -> %v", cat, needs)
}

// stripFence removes a markdown code fence some models wrap JSON in
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

type contextKind int

const (
	kindUser contextKind = iota
	kindMatchup
	kindCard
	kindMeta
	kindOther
)

// route picks the context by data needs first, category second
func route(cls Classification) contextKind {
	switch {
	case cls.has(NeedSendAll):
		return kindOther
	case cls.has(NeedUserMatchupSummary, NeedMetaDeckMatchups):
		return kindMatchup
	case cls.has(NeedUserCardSummary, NeedOpponentCardSummary):
		return kindCard
	case cls.has(NeedMetaDeckSummary):
		return kindMeta
	case cls.has(NeedUserSummary, NeedUserDeckSummary):
		return kindUser
	}
	switch cls.Category {
	case CategoryUser:
		return kindUser
	case CategoryMatchup:
		return kindMatchup
	case CategoryCard:
		return kindCard
	case CategoryMeta:
		return kindMeta
	}
	return kindOther
}

// PrepareContext assembles the tables and summary text for a classification
func PrepareContext(cls Classification, data Data) Context {
	var player analytics.Report
	if data.Player != nil {
		player = *data.Player
	}
	tables := make(map[string]any)
	var lines []string

	switch route(cls) {
	case kindUser:
		if cls.has(NeedUserSummary) {
			tables["user_summary"] = player.Summary
			lines = append(lines, summaryLines(player.Summary)...)
		}
		if cls.has(NeedUserDeckSummary) {
			tables["user_deck_summary"] = player.MyDeckTypes
			if len(player.MyDeckTypes) == 0 {
				lines = append(lines, "", "No deck statistics found for this user.")
				break
			}
			lines = append(lines, "", "Your deck performance:")
			for i, t := range player.MyDeckTypes {
				if i == deckLinesInContext {
					break
				}
				lines = append(lines, fmt.Sprintf("- %s: %d/%d wins (%.2f)", t.Archetype, t.Wins, t.Games, t.WinRate))
			}
		}

	case kindMatchup:
		if data.Player != nil {
			lines = append(lines, "User overall stats are included (games, wins, losses, win rate).")
		} else {
			lines = append(lines, "User overall stats are missing.")
		}
		if len(player.OpponentTypes) > 0 {
			lines = append(lines, fmt.Sprintf("User has matchup stats vs %d archetypes showing win/loss rates by deck type.", len(player.OpponentTypes)))
		} else {
			lines = append(lines, "User has no recorded matchup rows yet; lean on global meta patterns and general coaching, not exact per-archetype win rates.")
		}
		if len(data.Meta.Decks) > 0 {
			lines = append(lines, fmt.Sprintf("Meta deck summary is available for %d archetypes (games, win rate, meta share).", len(data.Meta.Decks)))
		}
		if len(data.Meta.Matchups) > 0 {
			lines = append(lines, fmt.Sprintf("Meta matchup summary is available for %d archetype pairs.", len(data.Meta.Matchups)))
		}
		tables["user_summary"] = player.Summary
		tables["user_matchup_summary"] = player.OpponentTypes
		tables["meta_deck_summary"] = data.Meta.Decks
		tables["meta_matchup_summary"] = data.Meta.Matchups

	case kindCard:
		if cls.has(NeedUserCardSummary) {
			tables["user_card_summary"] = map[string]any{"best": player.BestCards, "worst": player.WorstCards}
			lines = append(lines, "Your card performance is included.")
		}
		if cls.has(NeedOpponentCardSummary) {
			tables["opponent_card_summary"] = map[string]any{"tough": player.ToughOppCards, "easy": player.EasyOppCards}
			lines = append(lines, "Opponent card performance is included.")
		}

	case kindMeta:
		if cls.has(NeedMetaDeckSummary) {
			tables["meta_deck_summary"] = data.Meta.Decks
			lines = append(lines, "Meta deck performance table included.")
		}
		if cls.has(NeedMetaDeckMatchups) {
			tables["meta_deck_matchups"] = data.Meta.Matchups
			lines = append(lines, "Meta deck matchup chart included.")
		}

	default:
		tables["user_summary"] = player.Summary
		tables["user_deck_summary"] = player.MyDeckTypes
		tables["user_matchup_summary"] = player.OpponentTypes
		tables["meta_deck_summary"] = data.Meta.Decks
		tables["meta_deck_matchups"] = data.Meta.Matchups
		lines = append(lines, "General summary included.")
	}

	return Context{Text: strings.Join(lines, "\n"), Tables: tables}
}

func summaryLines(r analytics.Record) []string {
	return []string{
		fmt.Sprintf("games_played: %d", r.Games),
		fmt.Sprintf("wins: %d", r.Wins),
		fmt.Sprintf("losses: %d", r.Losses),
		fmt.Sprintf("draws: %d", r.Draws),
		fmt.Sprintf("win_rate: %.2f", r.WinRate),
	}
}

// LowDataWarning returns a caution for thin player samples. Meta questions
// rest on the ladder corpus and never get one.
func LowDataWarning(cat Category, games int) string {
	if cat == CategoryMeta || games >= LowDataGames {
		return ""
	}
	return fmt.Sprintf("Warning: only %d recent ranked games; these stats may be noisy or not fully representative.", games)
}

const expertSystemPrompt = `You are a Clash Royale coach.
You receive:
- A short text summary of available stats (player and meta).
- One or more tables in JSON form (user_summary, user_matchup_summary, meta_deck_summary, etc.).
- An optional data quality warning.

Guidelines:
1) Always give a clear, concrete answer to the question using whatever data is available.
2) If player stats are missing or sparse, lean on the meta tables and general matchup principles.
3) Mention the data quality warning briefly once, but do not let it dominate the answer.
4) Prefer 2-4 short paragraphs with actionable tips.
5) Only say you can't tell if there is truly no relevant data anywhere.`

func tablesJSON(tables map[string]any) string {
	b, err := json.Marshal(tables)
	if err != nil {
		return "{}"
	}
	if len(b) > MaxTablesJSON {
		return string(b[:MaxTablesJSON]) + "\n... [truncated]"
	}
	return string(b)
}

func expertUserPrompt(question string, cat Category, warning string, cc Context) string {
	if warning == "" {
		warning = "None."
	}
	text := cc.Text
	if text == "" {
		text = "No summary provided."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "User question:\n%s\n\n", question)
	fmt.Fprintf(&b, "Question category: %s\n\n", cat)
	fmt.Fprintf(&b, "Data quality warning (if any):\n%s\n\n", warning)
	fmt.Fprintf(&b, "Context summary text:\n%s\n\n", text)
	fmt.Fprintf(&b, "Context tables (JSON):\n%s\n", tablesJSON(cc.Tables))
	return b.String()
}

// Ask answers one question. An expert model failure yields an apologetic
// answer rather than an error; only a cancelled context is returned as one.
func (c *Coach) Ask(ctx context.Context, question string, data Data) (Answer, error) {
	games := data.Games()
	ans := Answer{Notes: []string{fmt.Sprintf("start: games_played=%d", games)}}

	cls, note := c.Classify(ctx, question)
	ans.Classification = cls
	ans.Notes = append(ans.Notes, note)
	if err := ctx.Err(); err != nil {
		return ans, err
	}

	ans.Context = PrepareContext(cls, data)
	ans.Warning = LowDataWarning(cls.Category, games)
	ans.Notes = append(ans.Notes, fmt.Sprintf("data check: category=%s games=%d warned=%t", cls.Category, games, ans.Warning != ""))

	text, err := c.llm.Generate(ctx, Prompt{
		Model:     c.ExpertModel,
		System:    expertSystemPrompt,
		User:      expertUserPrompt(question, cls.Category, ans.Warning, ans.Context),
		MaxTokens: expertMaxTokens,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ans, ctxErr
		}
		c.logger.Warn("expert call failed", zap.Error(err))
		ans.Text = fmt.Sprintf("I ran into an error calling the expert model. (internal note: %v)", err)
		ans.Notes = append(ans.Notes, fmt.Sprintf("answer: error %v", err))
		return ans, nil
	}
	ans.Text = strings.TrimSpace(text)
	ans.Notes = append(ans.Notes, "answer: ok")
	return ans, nil
}
