//go:build ignore

// render_report renders a narrative markdown file to a report PDF (or to the
// intermediate HTML with -html) for checking the template by eye.
//
//	go run tools/render_report.go -in narrative.md -name "Asha Rao" -roll R001
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"fit-report/internal/domain"
	"fit-report/pkg/infrastructure"
	"fit-report/pkg/report"
)

func main() {
	in := flag.String("in", "narrative.md", "narrative markdown file")
	name := flag.String("name", "Test Student", "student name")
	email := flag.String("email", "student@example.edu", "student email")
	roll := flag.String("roll", "R000", "roll number")
	title := flag.String("title", "Sample Role", "job title")
	outDir := flag.String("out", "outputs", "output directory")
	htmlOnly := flag.Bool("html", false, "write the HTML page instead of a PDF")
	flag.Parse()

	b, err := os.ReadFile(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read narrative: %v\n", err)
		os.Exit(2)
	}
	narrative := string(b)
	input := report.Input{
		JobID:       uuid.New(),
		StudentName: *name,
		Email:       *email,
		RollNumber:  *roll,
		JobTitle:    *title,
		Narrative:   narrative,
		MatchScore:  domain.ExtractMatchScore(narrative),
	}

	if *htmlOnly {
		page, err := report.BuildHTML(input, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "build html: %v\n", err)
			os.Exit(2)
		}
		fmt.Print(page)
		return
	}

	r := report.NewRenderer(infrastructure.NewChromedpRenderer("", time.Minute), *outDir, 1)
	path, err := r.Render(context.Background(), input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render: %v\n", err)
		os.Exit(2)
	}
	fmt.Printf("wrote %s\n", path)
}
