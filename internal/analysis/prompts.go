package analysis

import "fmt"

const analysisPrompt = `You are an expert in cancer diagnosis. Analyze the document uploaded, identifying key diagnostic markers and mutations related to cancer. Summarize the findings and provide a detailed explanation of the potential treatment options based on current scientific evidence. Make sure the information is clear and easy to understand, structuring your response in paragraphs for better readability. Remember to avoid giving personalized recommendations.`

const planPromptTemplate = `You are a care coordinator. Use this treatment plan to create a task board with the columns:
- Todo: tasks that need to be started
- Doing: tasks that are in progress
- Done: tasks that are completed

Each task should include a brief description. Categorize tasks by the stage of the treatment process.

Treatment plan:
%s

Reply with JSON only, no markdown and no commentary, using exactly this structure:
{
  "columns": [
    { "id": "todo", "title": "Todo" },
    { "id": "doing", "title": "Work in progress" },
    { "id": "done", "title": "Done" }
  ],
  "tasks": [
    { "id": "1", "columnId": "todo", "content": "Example task 1" },
    { "id": "2", "columnId": "doing", "content": "Example task 2" },
    { "id": "3", "columnId": "done", "content": "Example task 3" }
  ]
}`

// AnalysisPrompt is sent together with the uploaded document.
func AnalysisPrompt() string { return analysisPrompt }

// PlanPrompt asks for a board built from an analysis.
func PlanPrompt(analysis string) string {
	return fmt.Sprintf(planPromptTemplate, analysis)
}
