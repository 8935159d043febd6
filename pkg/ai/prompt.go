package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"fit-report/pkg/ai/providers"
)

const systemInstruction = "You are a career counselor analyzing a student profile against a job description. " +
	"Provide a detailed analysis of how well the student matches the job, highlighting strengths, " +
	"areas for improvement, and specific recommendations."

var chatTemplate = template.Must(template.New("chat").Parse(`Student Profile:
{{.Profile}}

Job Description:
{{.JobDescription}}

Please provide a detailed analysis of how well this student matches the job description. Include:
1. Overall match assessment
2. Key strengths relevant to the position
3. Skills gaps and areas for improvement
4. Specific recommendations for the student to better prepare for this role
5. Suggested resources or courses that would help the student
`))

var reportTemplate = template.Must(template.New("report").Parse(`Student Profile:
{{.Profile}}

Job Description:
{{.JobDescription}}

Please provide a detailed analysis of how well this student matches the job description. Include:
1. Overall match assessment (with a percentage score)
2. Key strengths relevant to the position
3. Skills gaps and areas for improvement
4. Specific recommendations for the student to better prepare for this role
5. Suggested resources or courses that would help the student
6. A personalized career development plan

Format your response in a professional manner suitable for a PDF report. Use clear headings and bullet points where appropriate.
`))

type promptData struct {
	Profile        string
	JobDescription string
}

// BuildPrompt renders the fixed analysis prompt. Chat providers get the
// instruction as a system message; Ollama gets the report variant, which
// also asks for a percentage score and a development plan.
func BuildPrompt(provider string, record map[string]string, jobDescription string) (providers.Prompt, error) {
	profile, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return providers.Prompt{}, fmt.Errorf("encode student profile: %w", err)
	}
	tmpl := chatTemplate
	if provider == ProviderOllama {
		tmpl = reportTemplate
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, promptData{Profile: string(profile), JobDescription: strings.TrimSpace(jobDescription)}); err != nil {
		return providers.Prompt{}, fmt.Errorf("render prompt: %w", err)
	}
	return providers.Prompt{System: systemInstruction, User: buf.String()}, nil
}
