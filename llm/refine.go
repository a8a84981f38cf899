package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"

	"github.com/openefficiency/empathaicoach/domain"
)

const refinePrompt = `You are refining development goals extracted from a coaching
conversation about 360-degree feedback. For each goal, tighten the wording into a
specific, measurable commitment. Keep the goal type (start/stop/continue) and the
speaker's own intent. Do not invent goals that are not grounded in the conversation.
Return every input goal, refined.`

const refineTokens = 1200

// refinedGoal is the structured-output shape for one refined goal
type refinedGoal struct {
	GoalID             string   `json:"goal_id" jsonschema:"required,description=ID of the input goal being refined"`
	GoalText           string   `json:"goal_text" jsonschema:"required,description=Refined goal statement"`
	GoalType           string   `json:"goal_type" jsonschema:"required,enum=start,enum=stop,enum=continue"`
	SpecificBehavior   string   `json:"specific_behavior" jsonschema:"required,description=The concrete behavior to change"`
	MeasurableCriteria string   `json:"measurable_criteria" jsonschema:"required,description=How progress will be measured"`
	ActionSteps        []string `json:"action_steps" jsonschema:"required,description=Concrete steps toward the goal"`
}

type goalRefinement struct {
	Goals []refinedGoal `json:"goals" jsonschema:"required"`
}

var refinementSchema = GenerateSchema[goalRefinement]()

// RefineGoals asks the model to tighten heuristically extracted goals into
// SMART form. Output is matched back to inputs by goal ID; unknown or
// malformed entries fall back to the heuristic original, so refinement can
// only improve the plan, never shrink it.
func (c *Client) RefineGoals(ctx context.Context, goals []domain.Goal, transcript []domain.Utterance) ([]domain.Goal, error) {
	if len(goals) == 0 {
		return goals, nil
	}

	input, err := buildRefineInput(goals, transcript)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}

	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "GoalRefinement",
			Schema:      refinementSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Refined development goals JSON"),
			Type:        "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(refineTokens),
		Instructions:    openai.String(refinePrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(input, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := callWithRetry(ctx, &c.client, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}

	var out goalRefinement
	if err := json.Unmarshal([]byte(resp.OutputText()), &out); err != nil {
		return nil, fmt.Errorf("%w: unmarshal refinement: %v", domain.ErrModelUnavailable, err)
	}

	byID := make(map[string]refinedGoal, len(out.Goals))
	for _, r := range out.Goals {
		byID[r.GoalID] = r
	}

	refined := make([]domain.Goal, len(goals))
	for i, g := range goals {
		refined[i] = g
		r, ok := byID[g.ID]
		if !ok {
			continue
		}
		candidate := g
		candidate.Text = strings.TrimSpace(r.GoalText)
		candidate.SpecificBehavior = strings.TrimSpace(r.SpecificBehavior)
		candidate.MeasurableCriteria = strings.TrimSpace(r.MeasurableCriteria)
		if t := domain.GoalType(r.GoalType); t.Valid() {
			candidate.Type = t
		}
		var steps []string
		for _, s := range r.ActionSteps {
			if s = strings.TrimSpace(s); s != "" {
				steps = append(steps, s)
			}
		}
		if len(steps) > 0 {
			candidate.ActionSteps = steps
		}
		if candidate.WellFormed() {
			refined[i] = candidate
		}
	}
	return refined, nil
}

func buildRefineInput(goals []domain.Goal, transcript []domain.Utterance) (string, error) {
	goalsJSON, err := json.MarshalIndent(goals, "", "  ")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Goals to refine:\n")
	b.Write(goalsJSON)
	b.WriteString("\n\nCoaching-phase conversation:\n")
	for _, u := range transcript {
		if u.Phase != domain.PhaseCoaching {
			continue
		}
		b.WriteString(string(u.Speaker))
		b.WriteString(": ")
		b.WriteString(u.Text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// GenerateSchema reflects a Go type into an OpenAI-compliant JSON schema
func GenerateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	schemaObj, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	ensureOpenAICompliance(schemaObj)
	return schemaObj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]interface{}, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
)

// ensureOpenAICompliance makes the reflected schema strict-mode compatible:
// every object closes additionalProperties and requires all its fields.
func ensureOpenAICompliance(schema map[string]interface{}) {
	if schemaType, ok := schema[typeKey].(string); ok && schemaType == "object" {
		schema[additionalPropertiesKey] = false

		if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
			var requiredFields []string
			for propName := range properties {
				requiredFields = append(requiredFields, propName)
			}
			if len(requiredFields) > 0 {
				schema[requiredKey] = requiredFields
			}
		}
	}

	if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]interface{}); ok {
				ensureOpenAICompliance(propMap)
			}
		}
	}

	if items, ok := schema[itemsKey].(map[string]interface{}); ok {
		ensureOpenAICompliance(items)
	}

	if additionalProps, ok := schema[additionalPropertiesKey].(map[string]interface{}); ok {
		ensureOpenAICompliance(additionalProps)
	}
}
