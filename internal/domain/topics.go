package domain

// PendingPrompt is shown before a match has started.
const PendingPrompt = "The match is about to start and the clock is running!"

// ModeTopic is the fixed topic used for a match type.
type ModeTopic struct {
	Topic   string
	Prompts []string
}

var modeTopics = map[MatchType]ModeTopic{
	MatchTypeAIAssisted: {
		Topic: "You will talk with your partner about your favorite book. Your discussion may include:",
		Prompts: []string{
			"What is the book?",
			"Who wrote the book?",
			"What is it about?",
		},
	},
	MatchTypeHuman: {
		Topic: "How to Spend Your Summer Vacation?",
		Prompts: []string{
			"What are your summer vacation plans?",
			"Where would you like to travel this summer?",
			"What activities do you enjoy during summer?",
			"How do you usually spend your free time in summer?",
			"What's your ideal summer vacation?",
		},
	},
}

// TopicForMode returns a copy of the fixed topic for t.
func TopicForMode(t MatchType) ModeTopic {
	topic, ok := modeTopics[t]
	if !ok {
		topic = modeTopics[MatchTypeAIAssisted]
	}
	return ModeTopic{Topic: topic.Topic, Prompts: append([]string(nil), topic.Prompts...)}
}
