// questions/loader.go
package questions

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/wfunc/quizduel/models"
)

// ErrThemeNotFound is returned when no question file exists for a theme.
var ErrThemeNotFound = errors.New("theme not found")

// Loader supplies the shuffled, size-limited question set for a theme.
type Loader interface {
	Load(theme string, count int) ([]models.Question, error)
}

// FileLoader reads theme files from a directory. A theme named
// "World History" maps to "world-history.md".
type FileLoader struct {
	Dir          string
	MaxQuestions int
}

func NewFileLoader(dir string, maxQuestions int) *FileLoader {
	return &FileLoader{Dir: dir, MaxQuestions: maxQuestions}
}

func (l *FileLoader) Load(theme string, count int) ([]models.Question, error) {
	filename := strings.ToLower(strings.Join(strings.Fields(theme), "-")) + ".md"
	path := filepath.Join(l.Dir, filename)

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrThemeNotFound
		}
		return nil, err
	}

	questions := Parse(string(content))
	if len(questions) == 0 {
		return nil, ErrThemeNotFound
	}

	if l.MaxQuestions > 0 && count > l.MaxQuestions {
		count = l.MaxQuestions
	}

	rand.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
	if count > 0 && count < len(questions) {
		questions = questions[:count]
	}
	return questions, nil
}

var blockTypes = map[string]models.QuestionType{
	"choice":  models.QuestionChoice,
	"boolean": models.QuestionBoolean,
	"open":    models.QuestionOpen,
}

// Parse extracts question blocks from a theme file. A block looks like:
//
//	### choice
//	**Question**
//	What is the capital of France?
//	**Answers**
//	- Paris *
//	- London
//	**Explanation**
//	Capital since the 6th century.
//
// The option marked with "*" is the correct one. Options of choice
// questions are shuffled so the correct index varies per load.
func Parse(content string) []models.Question {
	lines := strings.Split(content, "\n")
	var questions []models.Question

	for i := 0; i < len(lines); i++ {
		header := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(header, "### ") {
			continue
		}
		qType, ok := blockTypes[strings.TrimSpace(strings.TrimPrefix(header, "### "))]
		if !ok {
			continue
		}

		end := len(lines)
		for j := i + 1; j < len(lines); j++ {
			if strings.HasPrefix(strings.TrimSpace(lines[j]), "### ") {
				end = j
				break
			}
		}

		if q, ok := parseBlock(lines[i+1:end], qType); ok {
			q.ID = len(questions) + 1
			questions = append(questions, q)
		}
		i = end - 1
	}
	return questions
}

type option struct {
	text    string
	correct bool
}

func parseBlock(lines []string, qType models.QuestionType) (models.Question, bool) {
	var q models.Question
	q.Type = qType

	var opts []option
	section := ""
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "**Question"):
			section = "question"
		case strings.HasPrefix(line, "**Answers"):
			section = "answers"
		case strings.HasPrefix(line, "**Explanation"):
			section = "explanation"
		case section == "question" && q.Prompt == "":
			q.Prompt = line
		case section == "answers" && strings.HasPrefix(line, "-"):
			correct := strings.Contains(line, "*")
			text := strings.TrimSpace(strings.TrimPrefix(strings.ReplaceAll(line, "*", ""), "-"))
			opts = append(opts, option{text: text, correct: correct})
		case section == "explanation" && q.Explanation == "":
			q.Explanation = line
		}
	}

	if q.Prompt == "" || len(opts) == 0 {
		return q, false
	}

	if qType == models.QuestionChoice {
		rand.Shuffle(len(opts), func(i, j int) {
			opts[i], opts[j] = opts[j], opts[i]
		})
	}

	q.Correct = -1
	for i, opt := range opts {
		q.Options = append(q.Options, opt.text)
		if opt.correct {
			q.Correct = i
		}
	}
	if q.Correct < 0 {
		return q, false
	}
	return q, true
}
