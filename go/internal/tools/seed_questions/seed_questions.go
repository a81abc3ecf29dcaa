package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/quizarena/go/internal/dbconfig"
	"github.com/mcdev12/quizarena/go/internal/quiz/repository"
)

func main() {
	path := "questions.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load and validate the question bank
	questions, err := repository.LoadQuestionsFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load questions: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert and count; existing ids are left alone
	var (
		total    = len(questions)
		inserted int
		skipped  int
		errs     int
	)

	for _, q := range questions {
		var explanation *string
		if q.Explanation != "" {
			explanation = &q.Explanation
		}
		cmdTag, err := pool.Exec(context.Background(), `
            INSERT INTO quiz_questions (
              id, text, options, correct_answer, difficulty, explanation
            ) VALUES (
              $1,$2,$3,$4,$5,$6
            )
            ON CONFLICT (id) DO NOTHING
        `,
			q.ID, q.Text, q.Options, q.CorrectAnswer, string(q.Difficulty), explanation,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting question %s: %v\n", q.ID, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Questions seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
	if errs > 0 {
		os.Exit(1)
	}
}
