package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/agusgarcia3007/learnbase/backend/internal/model/course"
	chatservice "github.com/agusgarcia3007/learnbase/backend/internal/service/chat"
	"github.com/agusgarcia3007/learnbase/backend/internal/store"
	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
)

var ErrInvalidArguments = errors.New("invalid tool arguments")

const (
	minQuizQuestions = 3
	maxQuizQuestions = 5
	minQuizOptions   = 2
)

// Gate is the confirmation gate consulted by the preview and course tools.
type Gate interface {
	RecordPreview(ctx context.Context, conversationID string, preview protocol.CoursePreview) error
	ClaimCourse(ctx context.Context, conversationID string) (chatservice.Claim, error)
	ReleaseClaim(ctx context.Context, conversationID string, claim chatservice.Claim) error
	CourseCreated(ctx context.Context, conversationID, courseID string) error
}

// Toolset builds the authoring tools over the catalog and the gate.
type Toolset struct {
	repo   store.Repository
	gate   Gate
	policy StatusPolicy
}

// NewToolset returns the toolset. A nil policy selects DefaultStatusPolicy.
func NewToolset(repo store.Repository, gate Gate, policy StatusPolicy) *Toolset {
	if policy == nil {
		policy = DefaultStatusPolicy()
	}
	return &Toolset{repo: repo, gate: gate, policy: policy}
}

// Tools returns the tools in a stable order.
func (t *Toolset) Tools() []tool.InvokableTool {
	return []tool.InvokableTool{
		newTypedTool(searchContentInfo(), t.searchContent),
		newTypedTool(createQuizInfo(), t.createQuiz),
		newTypedTool(createModuleInfo(), t.createModule),
		newTypedTool(generateCoursePreviewInfo(), t.generateCoursePreview),
		newTypedTool(createCourseInfo(), t.createCourse),
	}
}

// typedTool adapts a typed function to tool.InvokableTool.
type typedTool[In, Out any] struct {
	info *schema.ToolInfo
	run  func(ctx context.Context, in In) (Out, error)
}

func newTypedTool[In, Out any](info *schema.ToolInfo, run func(context.Context, In) (Out, error)) tool.InvokableTool {
	return &typedTool[In, Out]{info: info, run: run}
}

func (t *typedTool[In, Out]) Info(context.Context) (*schema.ToolInfo, error) {
	return t.info, nil
}

func (t *typedTool[In, Out]) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in In
	if args := strings.TrimSpace(argumentsInJSON); args != "" {
		if err := json.Unmarshal([]byte(args), &in); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
	}

	out, err := t.run(ctx, in)
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal %s result: %w", t.info.Name, err)
	}
	return string(raw), nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArguments, fmt.Sprintf(format, args...))
}

func (t *Toolset) searchContent(ctx context.Context, in protocol.SearchContentInput) (protocol.SearchContentOutput, error) {
	scope, err := ScopeFrom(ctx)
	if err != nil {
		return protocol.SearchContentOutput{}, err
	}
	for _, typ := range in.Types {
		if !typ.Valid() {
			return protocol.SearchContentOutput{}, invalid("unknown content type %q", typ)
		}
	}

	assets, err := t.repo.SearchAssets(ctx, scope.TenantID, store.SearchQuery{
		Text:  in.Query,
		Types: in.Types,
		Limit: in.Limit,
	})
	if err != nil {
		return protocol.SearchContentOutput{}, fmt.Errorf("search content: %w", err)
	}

	out := protocol.SearchContentOutput{Results: make([]protocol.ContentHit, 0, len(assets))}
	for _, a := range assets {
		out.Results = append(out.Results, a.Hit())
	}
	return out, nil
}

func validateQuiz(in protocol.CreateQuizInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return invalid("title is required")
	}
	if n := len(in.Questions); n < minQuizQuestions || n > maxQuizQuestions {
		return invalid("a quiz needs %d to %d questions, got %d", minQuizQuestions, maxQuizQuestions, n)
	}
	for i, q := range in.Questions {
		if strings.TrimSpace(q.Question) == "" {
			return invalid("question %d has no text", i+1)
		}
		if len(q.Options) < minQuizOptions {
			return invalid("question %d needs at least %d options", i+1, minQuizOptions)
		}
	}
	return nil
}

func (t *Toolset) createQuiz(ctx context.Context, in protocol.CreateQuizInput) (protocol.CreateQuizOutput, error) {
	scope, err := ScopeFrom(ctx)
	if err != nil {
		return protocol.CreateQuizOutput{}, err
	}
	if err := validateQuiz(in); err != nil {
		return protocol.CreateQuizOutput{}, err
	}

	quiz := &course.Quiz{
		TenantID:    scope.TenantID,
		Title:       in.Title,
		Description: in.Description,
		Questions:   in.Questions,
		Status:      t.policy.StatusFor(protocol.ToolCreateQuiz),
	}
	if err := t.repo.CreateQuiz(ctx, quiz); err != nil {
		return protocol.CreateQuizOutput{}, fmt.Errorf("create quiz: %w", err)
	}

	return protocol.CreateQuizOutput{
		QuizID:        quiz.ID,
		Title:         quiz.Title,
		Status:        quiz.Status,
		QuestionCount: len(quiz.Questions),
	}, nil
}

func (t *Toolset) createModule(ctx context.Context, in protocol.CreateModuleInput) (protocol.CreateModuleOutput, error) {
	scope, err := ScopeFrom(ctx)
	if err != nil {
		return protocol.CreateModuleOutput{}, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return protocol.CreateModuleOutput{}, invalid("title is required")
	}

	items := make([]course.ModuleItem, 0, len(in.Items))
	for _, item := range in.Items {
		if !item.Type.Valid() {
			return protocol.CreateModuleOutput{}, invalid("unknown content type %q for item %s", item.Type, item.ID)
		}
		if _, err := t.repo.GetAsset(ctx, scope.TenantID, item.Type, item.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return protocol.CreateModuleOutput{}, fmt.Errorf("%s %s is not in the catalog: %w", item.Type, item.ID, err)
			}
			return protocol.CreateModuleOutput{}, fmt.Errorf("check item %s: %w", item.ID, err)
		}
		items = append(items, course.ModuleItem{
			Type:      item.Type,
			AssetID:   item.ID,
			Order:     item.Order,
			IsPreview: item.IsPreview,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })

	module := &course.Module{
		TenantID:    scope.TenantID,
		Title:       in.Title,
		Description: in.Description,
		Items:       items,
		Status:      t.policy.StatusFor(protocol.ToolCreateModule),
	}
	if err := t.repo.CreateModule(ctx, module); err != nil {
		return protocol.CreateModuleOutput{}, fmt.Errorf("create module: %w", err)
	}

	return protocol.CreateModuleOutput{
		ModuleID:  module.ID,
		Title:     module.Title,
		Status:    module.Status,
		ItemCount: len(module.Items),
	}, nil
}

func (t *Toolset) generateCoursePreview(ctx context.Context, in protocol.GenerateCoursePreviewInput) (protocol.CoursePreviewOutput, error) {
	scope, err := ScopeFrom(ctx)
	if err != nil {
		return protocol.CoursePreviewOutput{}, err
	}
	preview := in.CoursePreview.Clone()
	if strings.TrimSpace(preview.Title) == "" {
		return protocol.CoursePreviewOutput{}, invalid("title is required")
	}
	if preview.Level != "" && !preview.Level.Valid() {
		return protocol.CoursePreviewOutput{}, invalid("unknown level %q", preview.Level)
	}
	if preview.Modules == nil {
		preview.Modules = []protocol.PreviewModule{}
	}

	if err := t.gate.RecordPreview(ctx, scope.ConversationID, preview); err != nil {
		return protocol.CoursePreviewOutput{}, fmt.Errorf("record preview: %w", err)
	}

	return protocol.CoursePreviewOutput{Type: protocol.PreviewOutputType, CoursePreview: preview}, nil
}

func (t *Toolset) createCourse(ctx context.Context, in protocol.CreateCourseInput) (protocol.CreateCourseOutput, error) {
	scope, err := ScopeFrom(ctx)
	if err != nil {
		return protocol.CreateCourseOutput{}, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return protocol.CreateCourseOutput{}, invalid("title is required")
	}
	if in.Level != "" && !in.Level.Valid() {
		return protocol.CreateCourseOutput{}, invalid("unknown level %q", in.Level)
	}

	claim, err := t.gate.ClaimCourse(ctx, scope.ConversationID)
	if err != nil {
		return protocol.CreateCourseOutput{}, err
	}

	c := &course.Course{
		TenantID:         scope.TenantID,
		Title:            in.Title,
		ShortDescription: in.ShortDescription,
		Description:      in.Description,
		Level:            in.Level,
		Objectives:       in.Objectives,
		Requirements:     in.Requirements,
		Features:         in.Features,
		ModuleIDs:        in.ModuleIDs,
		Status:           t.policy.StatusFor(protocol.ToolCreateCourse),
		CreatedBy:        scope.UserID,
	}
	if err := t.repo.CreateCourse(ctx, c); err != nil {
		if releaseErr := t.gate.ReleaseClaim(ctx, scope.ConversationID, claim); releaseErr != nil {
			return protocol.CreateCourseOutput{}, errors.Join(fmt.Errorf("create course: %w", err), releaseErr)
		}
		return protocol.CreateCourseOutput{}, fmt.Errorf("create course: %w", err)
	}
	if err := t.gate.CourseCreated(ctx, scope.ConversationID, c.ID); err != nil {
		return protocol.CreateCourseOutput{}, fmt.Errorf("record course: %w", err)
	}

	return protocol.CreateCourseOutput{
		CourseID:    c.ID,
		Title:       c.Title,
		Status:      c.Status,
		ModuleCount: len(c.ModuleIDs),
	}, nil
}

func stringParam(desc string, required bool) *schema.ParameterInfo {
	return &schema.ParameterInfo{Type: schema.String, Desc: desc, Required: required}
}

func stringListParam(desc string) *schema.ParameterInfo {
	return &schema.ParameterInfo{Type: schema.Array, Desc: desc, ElemInfo: &schema.ParameterInfo{Type: schema.String}}
}

var contentTypes = []string{string(protocol.ContentVideo), string(protocol.ContentDocument), string(protocol.ContentQuiz)}

var levels = []string{string(protocol.LevelBeginner), string(protocol.LevelIntermediate), string(protocol.LevelAdvanced)}

func searchContentInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: protocol.ToolSearchContent,
		Desc: "Search the tenant catalog for existing videos, documents and quizzes. Always search before proposing modules.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": stringParam("free text matched against titles and descriptions", true),
			"types": {
				Type:     schema.Array,
				Desc:     "restrict results to these asset kinds",
				ElemInfo: &schema.ParameterInfo{Type: schema.String, Enum: contentTypes},
			},
			"limit": {Type: schema.Integer, Desc: "maximum number of results, default 10"},
		}),
	}
}

func createQuizInfo() *schema.ToolInfo {
	option := &schema.ParameterInfo{
		Type: schema.Object,
		SubParams: map[string]*schema.ParameterInfo{
			"text":      stringParam("answer text", true),
			"isCorrect": {Type: schema.Boolean, Desc: "whether this answer is correct", Required: true},
		},
	}
	question := &schema.ParameterInfo{
		Type: schema.Object,
		SubParams: map[string]*schema.ParameterInfo{
			"question":    stringParam("question text", true),
			"explanation": stringParam("why the correct answer is correct", true),
			"options":     {Type: schema.Array, Desc: "at least two answers", ElemInfo: option, Required: true},
		},
	}
	return &schema.ToolInfo{
		Name: protocol.ToolCreateQuiz,
		Desc: "Create and publish a multiple-choice quiz with 3 to 5 questions.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"title":       stringParam("quiz title", true),
			"description": stringParam("short description", false),
			"questions":   {Type: schema.Array, Desc: "3 to 5 questions", ElemInfo: question, Required: true},
		}),
	}
}

func createModuleInfo() *schema.ToolInfo {
	item := &schema.ParameterInfo{
		Type: schema.Object,
		SubParams: map[string]*schema.ParameterInfo{
			"type":      {Type: schema.String, Enum: contentTypes, Required: true},
			"id":        stringParam("id of an asset returned by searchContent or createQuiz", true),
			"order":     {Type: schema.Integer, Desc: "position inside the module, starting at 0", Required: true},
			"isPreview": {Type: schema.Boolean, Desc: "whether the item is visible before enrolling"},
		},
	}
	return &schema.ToolInfo{
		Name: protocol.ToolCreateModule,
		Desc: "Create and publish a module grouping existing assets in order.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"title":       stringParam("module title", true),
			"description": stringParam("short description", false),
			"items":       {Type: schema.Array, Desc: "ordered module items", ElemInfo: item, Required: true},
		}),
	}
}

func courseParams() map[string]*schema.ParameterInfo {
	return map[string]*schema.ParameterInfo{
		"title":            stringParam("course title", true),
		"shortDescription": stringParam("one sentence summary", false),
		"description":      stringParam("full description", false),
		"level":            {Type: schema.String, Enum: levels},
		"objectives":       stringListParam("learning objectives"),
		"requirements":     stringListParam("prerequisites"),
		"features":         stringListParam("course features"),
	}
}

func generateCoursePreviewInfo() *schema.ToolInfo {
	params := courseParams()
	params["modules"] = &schema.ParameterInfo{
		Type:     schema.Array,
		Required: true,
		ElemInfo: &schema.ParameterInfo{
			Type: schema.Object,
			SubParams: map[string]*schema.ParameterInfo{
				"id":          stringParam("module id returned by createModule", true),
				"title":       stringParam("module title", true),
				"description": stringParam("module description", false),
				"items": {
					Type: schema.Array,
					ElemInfo: &schema.ParameterInfo{
						Type: schema.Object,
						SubParams: map[string]*schema.ParameterInfo{
							"type":  {Type: schema.String, Enum: contentTypes, Required: true},
							"id":    stringParam("asset id", true),
							"title": stringParam("asset title", true),
						},
					},
				},
			},
		},
	}
	return &schema.ToolInfo{
		Name:        protocol.ToolGenerateCoursePreview,
		Desc:        "Show the proposed course to the user for review. Nothing is saved. Required before createCourse.",
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}

func createCourseInfo() *schema.ToolInfo {
	params := courseParams()
	params["moduleIds"] = &schema.ParameterInfo{
		Type:     schema.Array,
		Desc:     "ids of the modules, in course order",
		ElemInfo: &schema.ParameterInfo{Type: schema.String},
		Required: true,
	}
	return &schema.ToolInfo{
		Name:        protocol.ToolCreateCourse,
		Desc:        "Create the course as a draft. Only call after the user confirmed the latest preview.",
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}
