package questions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wfunc/quizduel/models"
)

const sampleTheme = `### choice
**Question**
What is the capital of France?
**Answers**
- Paris *
- London
- Berlin
- Madrid
**Explanation**
Paris has been the capital since the 6th century.

### boolean
**Question**
The Great Wall of China is visible from the Moon.
**Answers**
- True
- False *

### choice
**Question**
Which planet is known as the Red Planet?
**Answers**
- Venus
- Mars *
- Jupiter
`

func writeTheme(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write theme file: %v", err)
	}
}

func TestParse(t *testing.T) {
	questions := Parse(sampleTheme)
	if len(questions) != 3 {
		t.Fatalf("Expected 3 questions, got %d", len(questions))
	}

	// Ids follow block order regardless of later shuffling at load time.
	for i, q := range questions {
		if q.ID != i+1 {
			t.Errorf("Expected question ID %d, got %d", i+1, q.ID)
		}
	}

	if questions[0].Type != models.QuestionChoice {
		t.Errorf("Expected first block to be multiple_choice, got %s", questions[0].Type)
	}
	if questions[0].Prompt != "What is the capital of France?" {
		t.Errorf("Unexpected prompt: %q", questions[0].Prompt)
	}
	if len(questions[0].Options) != 4 {
		t.Errorf("Expected 4 options, got %d", len(questions[0].Options))
	}
	if questions[0].Options[questions[0].Correct] != "Paris" {
		t.Errorf("Expected correct option Paris, got %q", questions[0].Options[questions[0].Correct])
	}
	if questions[0].Explanation == "" {
		t.Error("Expected an explanation on the first question")
	}

	boolean := questions[1]
	if boolean.Type != models.QuestionBoolean {
		t.Errorf("Expected second block to be true_false, got %s", boolean.Type)
	}
	// Boolean options are never shuffled.
	if boolean.Options[0] != "True" || boolean.Options[1] != "False" {
		t.Errorf("Boolean options must keep their order, got %v", boolean.Options)
	}
	if boolean.Correct != 1 {
		t.Errorf("Expected correct index 1 for the boolean question, got %d", boolean.Correct)
	}
}

func TestParse_SkipsIncompleteBlocks(t *testing.T) {
	content := `### choice
**Question**
A question with no answers.

### choice
**Question**
A question where nothing is marked correct.
**Answers**
- One
- Two
`
	if questions := Parse(content); len(questions) != 0 {
		t.Errorf("Expected incomplete blocks to be skipped, got %d questions", len(questions))
	}
}

func TestFileLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeTheme(t, dir, "world-history.md", sampleTheme)

	loader := NewFileLoader(dir, 20)

	questions, err := loader.Load("World History", 2)
	if err != nil {
		t.Fatalf("Load should succeed, got: %v", err)
	}
	if len(questions) != 2 {
		t.Errorf("Expected the requested 2 questions, got %d", len(questions))
	}
}

func TestFileLoader_Load_ThemeNotFound(t *testing.T) {
	loader := NewFileLoader(t.TempDir(), 20)

	if _, err := loader.Load("No Such Theme", 5); err != ErrThemeNotFound {
		t.Errorf("Expected ErrThemeNotFound, got: %v", err)
	}
}

func TestFileLoader_Load_CapsAtMaxQuestions(t *testing.T) {
	dir := t.TempDir()
	writeTheme(t, dir, "science.md", sampleTheme)

	loader := NewFileLoader(dir, 2)

	questions, err := loader.Load("Science", 100)
	if err != nil {
		t.Fatalf("Load should succeed, got: %v", err)
	}
	if len(questions) != 2 {
		t.Errorf("Expected the cap of 2 questions, got %d", len(questions))
	}
}
