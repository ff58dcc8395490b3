package protocol

// ContentType identifies a catalog asset kind.
type ContentType string

const (
	ContentVideo    ContentType = "video"
	ContentDocument ContentType = "document"
	ContentQuiz     ContentType = "quiz"
)

// Valid reports whether t is a known asset kind.
func (t ContentType) Valid() bool {
	switch t {
	case ContentVideo, ContentDocument, ContentQuiz:
		return true
	}
	return false
}

// Level is the intended audience of a course.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// Status is the publication state of a created record.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// PreviewOutputType is the discriminant of a course preview tool output.
const PreviewOutputType = "course_preview"

// CoursePreview is the human-reviewable summary of a proposed course. It is
// never persisted and is always replaced as a whole.
type CoursePreview struct {
	Title            string          `json:"title"`
	ShortDescription string          `json:"shortDescription,omitempty"`
	Description      string          `json:"description,omitempty"`
	Level            Level           `json:"level,omitempty"`
	Objectives       []string        `json:"objectives,omitempty"`
	Requirements     []string        `json:"requirements,omitempty"`
	Features         []string        `json:"features,omitempty"`
	Modules          []PreviewModule `json:"modules"`
}

// PreviewModule groups preview items.
type PreviewModule struct {
	ID          string        `json:"id,omitempty"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Items       []PreviewItem `json:"items"`
}

// PreviewItem references one asset inside a preview module.
type PreviewItem struct {
	Type  ContentType `json:"type"`
	ID    string      `json:"id"`
	Title string      `json:"title"`
}

// Clone returns a deep copy of p.
func (p CoursePreview) Clone() CoursePreview {
	out := p
	out.Objectives = cloneStrings(p.Objectives)
	out.Requirements = cloneStrings(p.Requirements)
	out.Features = cloneStrings(p.Features)
	if p.Modules != nil {
		out.Modules = make([]PreviewModule, len(p.Modules))
		for i, m := range p.Modules {
			m.Items = append([]PreviewItem(nil), m.Items...)
			out.Modules[i] = m
		}
	}
	return out
}

// ModuleIDs returns the ids of the preview modules that reference persisted
// modules, in order.
func (p CoursePreview) ModuleIDs() []string {
	ids := make([]string, 0, len(p.Modules))
	for _, m := range p.Modules {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
