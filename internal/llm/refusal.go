package llm

import "strings"

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// LooksLikeRefusal reports whether a response reads like the model declining the task.
func LooksLikeRefusal(response string) bool {
	lower := strings.ToLower(response)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
