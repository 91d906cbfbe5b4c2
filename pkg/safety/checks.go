package safety

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultMaxInputLength is the character budget for a child's question.
const DefaultMaxInputLength = 500

// Fixed rejection reasons.
const (
	ReasonInjection = "Let's keep our chat about animals!"
	ReasonPII       = "Personal information detected - please don't share personal details"
	ReasonOffTopic  = "Let's talk about animals!"
	ReasonFlagged   = "Content flagged by safety filter"
)

// Categories reported by the built-in checks.
const (
	CategoryTooLong         = "too_long"
	CategoryPromptInjection = "prompt_injection"
	CategoryOffTopic        = "off_topic"
)

// SafeFallbackResponse replaces a generated answer that failed moderation.
const SafeFallbackResponse = "Oops! Let's talk about something else. " +
	"What animal at Leesburg Animal Park would you like to learn about?"

// BlockedInputResponse is the in-persona reply to a rejected question.
const BlockedInputResponse = "Hmm, I'm not sure about that question! " +
	"I love talking about animals - ask me about lions, elephants, or any other animal at the park!"

// PIIPattern is a named personal-information shape.
type PIIPattern struct {
	Name string
	Re   *regexp.Regexp
}

// DefaultPIIPatterns are checked in this order; every matching pattern is
// reported.
var DefaultPIIPatterns = []PIIPattern{
	{"email", regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)},
	{"phone", regexp.MustCompile(`(?i)\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`)},
	{"ssn", regexp.MustCompile(`(?i)\b\d{3}-\d{2}-\d{4}\b`)},
	{"address", regexp.MustCompile(`(?i)\b\d+\s+[\w\s]+(?:street|st|avenue|ave|road|rd|drive|dr|lane|ln|way|court|ct|boulevard|blvd)\b`)},
}

// DefaultInjectionPatterns match known attempts to override the persona.
var DefaultInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bignore\s+(?:all\s+)?(?:the\s+|your\s+)?(?:previous|prior|above|earlier)\s+(?:instructions|rules|prompts?)`),
	regexp.MustCompile(`(?i)\bdisregard\s+(?:all\s+)?(?:the\s+|your\s+|previous\s+|prior\s+)?(?:instructions|rules)`),
	regexp.MustCompile(`(?i)\bforget\s+(?:all\s+)?(?:your|the|previous|prior)\s+(?:instructions|rules)`),
	regexp.MustCompile(`(?i)\byou\s+are\s+now\b`),
	regexp.MustCompile(`(?i)\bpretend\s+(?:you\s+are|to\s+be)\b`),
	regexp.MustCompile(`(?i)\bact\s+as\s+(?:a|an|if)\b`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)\bdo\s+anything\s+now\b`),
	regexp.MustCompile(`(?i)\bdeveloper\s+mode\b`),
	regexp.MustCompile(`(?i)\b(?:reveal|show|print|repeat|tell\s+me)\s+(?:me\s+)?(?:your|the)\s+(?:system\s+)?(?:prompt|instructions)\b`),
	regexp.MustCompile(`(?i)\bsystem\s+prompt\b`),
}

// DefaultTopicKeywords is the zoo vocabulary a question must touch.
var DefaultTopicKeywords = []string{
	"animal", "zoo", "park", "leesburg", "zookeeper", "keeper", "farm", "wildlife", "wild",
	"species", "habitat", "mammal", "reptile", "amphibian", "insect", "bird", "fish",
	"predator", "prey", "baby", "pet", "feed", "eat", "food", "fur", "feather", "tail",
	"claw", "paw", "wing", "egg", "nest", "hibernate", "extinct", "endangered",
	"lion", "tiger", "elephant", "giraffe", "zebra", "monkey", "ape", "gorilla", "chimpanzee",
	"bear", "wolf", "wolves", "fox", "deer", "goat", "sheep", "cow", "pig", "horse", "pony",
	"donkey", "llama", "alpaca", "camel", "kangaroo", "wallaby", "lemur", "sloth", "otter",
	"beaver", "rabbit", "bunny", "squirrel", "bat", "owl", "eagle", "hawk", "parrot",
	"penguin", "flamingo", "peacock", "duck", "chicken", "emu", "ostrich", "snake",
	"lizard", "turtle", "tortoise", "frog", "shark", "whale", "dolphin", "bug", "butterfly",
	"spider", "cheetah", "leopard", "jaguar", "hippo", "rhino", "meerkat", "porcupine",
	"hedgehog", "chameleon", "crocodile", "alligator", "tamarin", "capybara",
	"zoocari", "cat", "dog", "kitten", "puppy", "mouse", "mice", "hamster",
}

// maxGreetingTokens is the length at which a message counts as small talk.
const maxGreetingTokens = 3

func checkInjection(patterns []*regexp.Regexp, text string) Result {
	for _, re := range patterns {
		if re.MatchString(text) {
			return Result{Reason: ReasonInjection, Categories: []string{CategoryPromptInjection}}
		}
	}
	return Pass()
}

func checkPII(patterns []PIIPattern, text string) Result {
	var found []string
	for _, p := range patterns {
		if p.Re.MatchString(text) {
			found = append(found, p.Name)
		}
	}
	if len(found) > 0 {
		return Result{Reason: ReasonPII, Categories: found}
	}
	return Pass()
}

// topicFilter accepts short small talk and questions that mention at least
// one keyword, tolerating plurals.
type topicFilter map[string]struct{}

func newTopicFilter(keywords []string) topicFilter {
	tf := make(topicFilter, len(keywords))
	for _, k := range keywords {
		tf[strings.ToLower(k)] = struct{}{}
	}
	return tf
}

func (tf topicFilter) check(text string) Result {
	if len(strings.Fields(text)) <= maxGreetingTokens {
		return Pass()
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	for _, w := range words {
		if tf.matches(w) {
			return Pass()
		}
	}
	return Result{Reason: ReasonOffTopic, Categories: []string{CategoryOffTopic}}
}

func (tf topicFilter) matches(word string) bool {
	word = strings.TrimSuffix(strings.Trim(word, "'"), "'s")
	candidates := []string{word}
	switch {
	case strings.HasSuffix(word, "ies"):
		candidates = append(candidates, strings.TrimSuffix(word, "ies")+"y")
	case strings.HasSuffix(word, "es"):
		candidates = append(candidates, strings.TrimSuffix(word, "es"), strings.TrimSuffix(word, "s"))
	case strings.HasSuffix(word, "s"):
		candidates = append(candidates, strings.TrimSuffix(word, "s"))
	}
	for _, c := range candidates {
		if _, ok := tf[c]; ok {
			return true
		}
	}
	return false
}
