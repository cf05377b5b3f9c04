package question

import "sort"

// Difficulty constants for readability.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Type constants as the trivia API spells them.
const (
	TypeMultiple = "multiple"
	TypeBoolean  = "boolean"
)

// Question is one fetched trivia question. HistoryID links it to the
// persisted history record created when the batch was fetched.
type Question struct {
	HistoryID        int64    `json:"history_id"`
	Category         string   `json:"category"`
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

// Options lists the answers shown to the reviewer: True/False for boolean
// questions, otherwise the incorrect answers followed by the correct one.
func (q Question) Options() []string {
	if q.Type == TypeBoolean {
		return []string{"True", "False"}
	}
	opts := make([]string, 0, len(q.IncorrectAnswers)+1)
	opts = append(opts, q.IncorrectAnswers...)
	return append(opts, q.CorrectAnswer)
}

// FetchRequest is what the reviewer submits to load a new batch. Category
// is an Open Trivia DB category id; 0 means any category.
type FetchRequest struct {
	Amount     int    `json:"amount" validate:"required,min=1,max=49"`
	Category   int    `json:"category" validate:"omitempty,min=9,max=32"`
	Difficulty string `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Type       string `json:"type" validate:"omitempty,oneof=multiple boolean"`
}

// Category pairs a display name with its Open Trivia DB id.
type Category struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// AnyCategory is the name shown for "no category filter" (id 0).
const AnyCategory = "Any Category"

var categories = map[string]int{
	"General Knowledge":                     9,
	"Entertainment: Books":                  10,
	"Entertainment: Film":                   11,
	"Entertainment: Music":                  12,
	"Entertainment: Musicals & Theatres":    13,
	"Entertainment: Television":             14,
	"Entertainment: Video Games":            15,
	"Entertainment: Board Games":            16,
	"Science & Nature":                      17,
	"Science: Computers":                    18,
	"Science: Mathematics":                  19,
	"Mythology":                             20,
	"Sports":                                21,
	"Geography":                             22,
	"History":                               23,
	"Politics":                              24,
	"Art":                                   25,
	"Celebrities":                           26,
	"Animals":                               27,
	"Vehicles":                              28,
	"Entertainment: Comics":                 29,
	"Science: Gadgets":                      30,
	"Entertainment: Japanese Anime & Manga": 31,
	"Entertainment: Cartoon & Animations":   32,
}

// Categories returns the category table ordered by id, with AnyCategory last.
func Categories() []Category {
	out := make([]Category, 0, len(categories)+1)
	for name, id := range categories {
		out = append(out, Category{Name: name, ID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return append(out, Category{Name: AnyCategory})
}

// CategoryID resolves a display name; AnyCategory and "" map to 0.
func CategoryID(name string) (int, bool) {
	if name == "" || name == AnyCategory {
		return 0, true
	}
	id, ok := categories[name]
	return id, ok
}
