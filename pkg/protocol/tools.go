package protocol

import "encoding/json"

// Tool names understood by the authoring agent.
const (
	ToolSearchContent         = "searchContent"
	ToolCreateQuiz            = "createQuiz"
	ToolCreateModule          = "createModule"
	ToolGenerateCoursePreview = "generateCoursePreview"
	ToolCreateCourse          = "createCourse"
)

// ToolInput is the decoded argument payload of a tool call.
type ToolInput interface {
	ToolName() string
}

// ToolOutput is the decoded result payload of a tool call.
type ToolOutput interface {
	ToolName() string
}

// SearchContentInput looks up existing catalog assets.
type SearchContentInput struct {
	Query string        `json:"query"`
	Types []ContentType `json:"types,omitempty"`
	Limit int           `json:"limit,omitempty"`
}

// QuizOption is one answer of a quiz question.
type QuizOption struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// QuizQuestion is one question of a quiz.
type QuizQuestion struct {
	Question    string       `json:"question"`
	Explanation string       `json:"explanation"`
	Options     []QuizOption `json:"options"`
}

// CreateQuizInput describes a quiz to persist.
type CreateQuizInput struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Questions   []QuizQuestion `json:"questions"`
}

// ModuleItemInput references an existing asset from a module.
type ModuleItemInput struct {
	Type      ContentType `json:"type"`
	ID        string      `json:"id"`
	Order     int         `json:"order"`
	IsPreview bool        `json:"isPreview"`
}

// CreateModuleInput describes a module to persist.
type CreateModuleInput struct {
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Items       []ModuleItemInput `json:"items"`
}

// GenerateCoursePreviewInput carries the proposed course structure.
type GenerateCoursePreviewInput struct {
	CoursePreview
}

// CreateCourseInput describes the final course.
type CreateCourseInput struct {
	Title            string   `json:"title"`
	ShortDescription string   `json:"shortDescription,omitempty"`
	Description      string   `json:"description,omitempty"`
	Level            Level    `json:"level,omitempty"`
	Objectives       []string `json:"objectives,omitempty"`
	Requirements     []string `json:"requirements,omitempty"`
	Features         []string `json:"features,omitempty"`
	ModuleIDs        []string `json:"moduleIds"`
}

// OpaqueInput holds arguments of an unknown tool, or arguments that did not
// match the known shape.
type OpaqueInput struct {
	Name string
	Raw  json.RawMessage
}

func (SearchContentInput) ToolName() string         { return ToolSearchContent }
func (CreateQuizInput) ToolName() string            { return ToolCreateQuiz }
func (CreateModuleInput) ToolName() string          { return ToolCreateModule }
func (GenerateCoursePreviewInput) ToolName() string { return ToolGenerateCoursePreview }
func (CreateCourseInput) ToolName() string          { return ToolCreateCourse }
func (i OpaqueInput) ToolName() string              { return i.Name }

// ContentHit is one search result.
type ContentHit struct {
	Type        ContentType `json:"type"`
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Status      Status      `json:"status,omitempty"`
}

// SearchContentOutput lists matching assets.
type SearchContentOutput struct {
	Results []ContentHit `json:"results"`
}

// CreateQuizOutput describes the persisted quiz.
type CreateQuizOutput struct {
	QuizID        string `json:"quizId"`
	Title         string `json:"title"`
	Status        Status `json:"status"`
	QuestionCount int    `json:"questionCount"`
}

// CreateModuleOutput describes the persisted module.
type CreateModuleOutput struct {
	ModuleID  string `json:"moduleId"`
	Title     string `json:"title"`
	Status    Status `json:"status"`
	ItemCount int    `json:"itemCount"`
}

// CoursePreviewOutput is the preview tool result. Type is always
// PreviewOutputType; the remaining fields form the preview.
type CoursePreviewOutput struct {
	Type string `json:"type"`
	CoursePreview
}

// CreateCourseOutput describes the persisted draft course.
type CreateCourseOutput struct {
	CourseID    string `json:"courseId"`
	Title       string `json:"title"`
	Status      Status `json:"status"`
	ModuleCount int    `json:"moduleCount"`
}

// ToolErrorOutput is an error-shaped result of any tool.
type ToolErrorOutput struct {
	Name  string `json:"-"`
	Error string `json:"error"`
}

// OpaqueOutput holds the result of an unknown tool, or a result that did not
// match the known shape.
type OpaqueOutput struct {
	Name string
	Raw  json.RawMessage
}

func (SearchContentOutput) ToolName() string { return ToolSearchContent }
func (CreateQuizOutput) ToolName() string    { return ToolCreateQuiz }
func (CreateModuleOutput) ToolName() string  { return ToolCreateModule }
func (CoursePreviewOutput) ToolName() string { return ToolGenerateCoursePreview }
func (CreateCourseOutput) ToolName() string  { return ToolCreateCourse }
func (o ToolErrorOutput) ToolName() string   { return o.Name }
func (o OpaqueOutput) ToolName() string      { return o.Name }

// DecodeToolInput maps raw arguments onto the typed variant for name.
func DecodeToolInput(name string, raw json.RawMessage) ToolInput {
	switch name {
	case ToolSearchContent:
		return decodeInput[SearchContentInput](name, raw)
	case ToolCreateQuiz:
		return decodeInput[CreateQuizInput](name, raw)
	case ToolCreateModule:
		return decodeInput[CreateModuleInput](name, raw)
	case ToolGenerateCoursePreview:
		return decodeInput[GenerateCoursePreviewInput](name, raw)
	case ToolCreateCourse:
		return decodeInput[CreateCourseInput](name, raw)
	default:
		return OpaqueInput{Name: name, Raw: raw}
	}
}

// DecodeToolOutput maps a raw result onto the typed variant for name. An
// object with a non-empty "error" field decodes to ToolErrorOutput for every
// tool.
func DecodeToolOutput(name string, raw json.RawMessage) ToolOutput {
	var probe ToolErrorOutput
	if err := json.Unmarshal(raw, &probe); err == nil && probe.Error != "" {
		probe.Name = name
		return probe
	}

	switch name {
	case ToolSearchContent:
		return decodeOutput[SearchContentOutput](name, raw)
	case ToolCreateQuiz:
		return decodeOutput[CreateQuizOutput](name, raw)
	case ToolCreateModule:
		return decodeOutput[CreateModuleOutput](name, raw)
	case ToolGenerateCoursePreview:
		out := decodeOutput[CoursePreviewOutput](name, raw)
		if p, ok := out.(CoursePreviewOutput); ok && p.Type != PreviewOutputType {
			return OpaqueOutput{Name: name, Raw: raw}
		}
		return out
	case ToolCreateCourse:
		return decodeOutput[CreateCourseOutput](name, raw)
	default:
		return OpaqueOutput{Name: name, Raw: raw}
	}
}

// PreviewFromOutput extracts the course preview carried by a preview tool
// result.
func PreviewFromOutput(toolName string, raw json.RawMessage) (CoursePreview, bool) {
	if toolName != ToolGenerateCoursePreview {
		return CoursePreview{}, false
	}
	out, ok := DecodeToolOutput(toolName, raw).(CoursePreviewOutput)
	if !ok {
		return CoursePreview{}, false
	}
	return out.CoursePreview, true
}

func decodeInput[T ToolInput](name string, raw json.RawMessage) ToolInput {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return OpaqueInput{Name: name, Raw: raw}
	}
	return v
}

func decodeOutput[T ToolOutput](name string, raw json.RawMessage) ToolOutput {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return OpaqueOutput{Name: name, Raw: raw}
	}
	return v
}
