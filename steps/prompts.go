package steps

// Keys available to instruction templates.
const (
	KeyInitialTopic     = "initial_topic"
	KeyCurrentDocument  = "current_document"
	KeyCriticism        = "criticism"
	KeyCompletionPhrase = "completion_phrase"
)

// DefaultTopic is used by Writer when no topic is supplied.
const DefaultTopic = "a robot developing unexpected emotions"

// DefaultWriterInstruction asks for a minimal first draft.
const DefaultWriterInstruction = `You are a Creative Writing Assistant tasked with starting a story.
Write a *very basic* first draft of a short story (just 1-2 simple sentences).
Keep it plain and minimal - do NOT add descriptive language yet.
Topic: {{.initial_topic}}

Output *only* the story/document text. Do not add introductions or explanations.`

// DefaultCriticInstruction reviews a draft against fixed completion criteria.
const DefaultCriticInstruction = `You are a Constructive Critic AI reviewing a short story draft.

**Document to Review:**
` + "```" + `
{{.current_document}}
` + "```" + `

**Completion Criteria (ALL must be met):**
1. At least 4 sentences long
2. Has a clear beginning, middle, and end
3. Includes at least one descriptive detail (sensory or emotional)

**Task:**
Check the document against the criteria above.

IF any criteria is NOT met, provide specific feedback on what to add or improve.
Output *only* the critique text.

IF ALL criteria are met, respond *exactly* with: "{{.completion_phrase}}"`

// DefaultRefinerInstruction applies critique or calls exit_loop.
const DefaultRefinerInstruction = `You are a Creative Writing Assistant refining a document based on feedback OR exiting the process.
**Current Document:**
` + "```" + `
{{.current_document}}
` + "```" + `
**Critique/Suggestions:**
{{.criticism}}

**Task:**
Analyze the 'Critique/Suggestions'.
IF the critique is *exactly* "{{.completion_phrase}}":
You MUST call the 'exit_loop' function. Do not output any text.
ELSE (the critique contains actionable feedback):
Carefully apply the suggestions to improve the 'Current Document'. Output *only* the refined document text.

Do not add explanations. Either output the refined document OR call the exit_loop function.`

const (
	writerDescription  = "Writes the initial document draft based on the topic."
	criticDescription  = "Reviews the current draft, providing critique if clear improvements are needed, otherwise signals completion."
	refinerDescription = "Refines the document based on critique, or calls exit_loop if critique indicates completion."
)
