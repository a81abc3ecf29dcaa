package repository

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/quizarena/go/internal/models"
)

type questionRecord struct {
	ID            string   `yaml:"id"`
	Text          string   `yaml:"text"`
	Options       []string `yaml:"options"`
	CorrectAnswer string   `yaml:"correct_answer"`
	Difficulty    string   `yaml:"difficulty"`
	Explanation   string   `yaml:"explanation"`
}

type questionsFile struct {
	Questions []questionRecord `yaml:"questions"`
}

// LoadQuestionsFile reads a YAML question bank from path.
func LoadQuestionsFile(path string) ([]models.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read questions file: %w", err)
	}
	return ParseQuestions(data)
}

// ParseQuestions decodes a YAML question bank and checks every entry.
func ParseQuestions(data []byte) ([]models.Question, error) {
	var f questionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse questions: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Questions))
	out := make([]models.Question, 0, len(f.Questions))
	for i, r := range f.Questions {
		q := models.Question{
			ID:            strings.TrimSpace(r.ID),
			Text:          r.Text,
			Options:       r.Options,
			CorrectAnswer: r.CorrectAnswer,
			Difficulty:    models.Difficulty(strings.ToLower(strings.TrimSpace(r.Difficulty))),
			Explanation:   r.Explanation,
		}
		if err := validateQuestion(q); err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("question %d: duplicate id %q", i, q.ID)
		}
		seen[q.ID] = struct{}{}
		out = append(out, q)
	}
	return out, nil
}

func validateQuestion(q models.Question) error {
	if q.ID == "" {
		return fmt.Errorf("missing id")
	}
	if q.Text == "" {
		return fmt.Errorf("%s: missing text", q.ID)
	}
	switch q.Difficulty {
	case models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard:
	default:
		return fmt.Errorf("%s: unknown difficulty %q", q.ID, q.Difficulty)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%s: needs at least two options", q.ID)
	}
	for _, opt := range q.Options {
		if strings.EqualFold(strings.TrimSpace(opt), strings.TrimSpace(q.CorrectAnswer)) {
			return nil
		}
	}
	return fmt.Errorf("%s: correct answer is not one of the options", q.ID)
}
