package external

// Item is one multiple-choice question as published by an upstream trivia API.
type Item struct {
	Category  string
	Question  string
	Correct   string
	Incorrect []string
}
