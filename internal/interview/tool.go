// Package interview defines the structured-questioning tool the model calls
// to clarify ambiguous requirements, and validates its payloads at the
// boundary so malformed tool input never reaches the UI.
package interview

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ponderlabs/ponder/internal/domain"
)

// ToolName identifies the interview tool on the wire.
const ToolName = "interview"

const description = `向用户展示结构化选择界面来澄清模糊需求。

【重要】必须提供 questions 数组参数，格式如下：
{
  "questions": [
    {
      "question": "您希望构建什么类型的系统？",
      "header": "系统类型",
      "multiSelect": false,
      "options": [
        {"label": "Web应用", "description": "浏览器中运行的应用"},
        {"label": "后端服务", "description": "API或微服务"},
        {"label": "自动化流程", "description": "定时任务或工作流"}
      ]
    }
  ]
}

约束：
- questions: 1-4个问题
- header: ≤12字符
- options: 每个问题2-4个选项
- 用户可选"其他"输入自定义答案`

const inputSchemaJSON = `{
  "type": "object",
  "properties": {
    "questions": {
      "type": "array",
      "minItems": 1,
      "maxItems": 4,
      "items": {
        "type": "object",
        "properties": {
          "question": {"type": "string"},
          "header": {"type": "string", "maxLength": 12},
          "multiSelect": {"type": "boolean"},
          "options": {
            "type": "array",
            "minItems": 2,
            "maxItems": 4,
            "items": {
              "type": "object",
              "properties": {
                "label": {"type": "string"},
                "description": {"type": "string"}
              },
              "required": ["label", "description"]
            }
          }
        },
        "required": ["question", "header", "multiSelect", "options"]
      }
    }
  },
  "required": ["questions"]
}`

const outputSchemaJSON = `{
  "type": "object",
  "properties": {
    "answers": {
      "type": "object",
      "additionalProperties": {
        "oneOf": [
          {"type": "string"},
          {"type": "array", "items": {"type": "string"}}
        ]
      }
    }
  },
  "required": ["answers"]
}`

// Option is one selectable answer.
type Option struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Question is one structured question presented to the user.
type Question struct {
	Question    string   `json:"question"`
	Header      string   `json:"header"`
	MultiSelect bool     `json:"multiSelect"`
	Options     []Option `json:"options"`
}

// Input is the tool-call payload from the model.
type Input struct {
	Questions []Question `json:"questions"`
}

// Output is the user's answers sent back as the tool result. Values are a
// selected label, a list of labels for multi-select, or free text.
type Output struct {
	Answers map[string]any `json:"answers"`
}

// Definition returns the tool definition to register on chat requests.
func Definition() domain.ToolDefinition {
	var schema any
	// The schema constant is known-valid; a decode failure is a programmer
	// error caught by the package tests.
	if err := json.Unmarshal([]byte(inputSchemaJSON), &schema); err != nil {
		panic(fmt.Sprintf("interview: input schema: %v", err))
	}
	return domain.ToolDefinition{
		Name:        ToolName,
		Description: description,
		InputSchema: schema,
	}
}

var (
	compileOnce  sync.Once
	inputSchema  *jsonschema.Schema
	outputSchema *jsonschema.Schema
	compileErr   error
)

func compile() {
	c := jsonschema.NewCompiler()

	in, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(inputSchemaJSON)))
	if err != nil {
		compileErr = fmt.Errorf("decode input schema: %w", err)
		return
	}
	out, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(outputSchemaJSON)))
	if err != nil {
		compileErr = fmt.Errorf("decode output schema: %w", err)
		return
	}

	if err := c.AddResource("interview-input.json", in); err != nil {
		compileErr = fmt.Errorf("add input schema: %w", err)
		return
	}
	if err := c.AddResource("interview-output.json", out); err != nil {
		compileErr = fmt.Errorf("add output schema: %w", err)
		return
	}

	if inputSchema, err = c.Compile("interview-input.json"); err != nil {
		compileErr = fmt.Errorf("compile input schema: %w", err)
		return
	}
	if outputSchema, err = c.Compile("interview-output.json"); err != nil {
		compileErr = fmt.Errorf("compile output schema: %w", err)
	}
}

func validate(schema *jsonschema.Schema, raw []byte) error {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return schema.Validate(instance)
}

// ValidateInput checks a tool-call argument payload against the input schema
// and decodes it.
func ValidateInput(raw []byte) (*Input, error) {
	compileOnce.Do(compile)
	if compileErr != nil {
		return nil, compileErr
	}
	if err := validate(inputSchema, raw); err != nil {
		return nil, fmt.Errorf("interview input rejected: %w", err)
	}

	var in Input
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode interview input: %w", err)
	}
	return &in, nil
}

// ValidateOutput checks a tool-result payload against the output schema and
// decodes it.
func ValidateOutput(raw []byte) (*Output, error) {
	compileOnce.Do(compile)
	if compileErr != nil {
		return nil, compileErr
	}
	if err := validate(outputSchema, raw); err != nil {
		return nil, fmt.Errorf("interview output rejected: %w", err)
	}

	var out Output
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode interview output: %w", err)
	}
	return &out, nil
}
