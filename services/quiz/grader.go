// Package quiz grades module quiz submissions.
package quiz

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"coursemarket/apperr"
	courseModels "coursemarket/models/course"
)

// Definition is what the grader needs from a quiz.
type Definition struct {
	CorrectIndexes []int
	PassingScore   int
}

// Result is the outcome of one graded attempt.
type Result struct {
	Score        int  `json:"score"`
	Passed       bool `json:"passed"`
	PassingScore int  `json:"passingScore"`
	Correct      int  `json:"correct"`
	Total        int  `json:"total"`
}

// DefinitionOf converts a stored quiz, ordering questions by OrderIndex.
func DefinitionOf(q courseModels.Quiz) Definition {
	questions := make([]courseModels.QuizQuestion, len(q.Questions))
	copy(questions, q.Questions)
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].OrderIndex < questions[j].OrderIndex
	})
	def := Definition{PassingScore: q.PassingScore}
	for _, question := range questions {
		def.CorrectIndexes = append(def.CorrectIndexes, question.CorrectIndex)
	}
	return def
}

// Grade scores answers by position. Answers that are missing or not
// integers count as wrong.
func Grade(def Definition, answers []interface{}) (Result, error) {
	total := len(def.CorrectIndexes)
	if total == 0 {
		return Result{}, apperr.BadRequest("this quiz has no questions")
	}

	passing := def.PassingScore
	if passing <= 0 || passing > 100 {
		passing = courseModels.DefaultPassingScore
	}

	correct := 0
	for i, want := range def.CorrectIndexes {
		if i >= len(answers) {
			break
		}
		if got, ok := toIndex(answers[i]); ok && got == want {
			correct++
		}
	}

	score := int(math.Round(100 * float64(correct) / float64(total)))
	return Result{
		Score:        score,
		Passed:       score >= passing,
		PassingScore: passing,
		Correct:      correct,
		Total:        total,
	}, nil
}

func toIndex(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := strconv.Atoi(n.String())
		return i, err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}
