// Package patch implements the context-patch pipeline: domain knowledge files
// are matched against the user's message by a lightweight classification call,
// and matched content is spliced into the system prompt.
package patch

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	frontmatterRe = regexp.MustCompile(`(?s)^---\n(.*?)\n---\n(.*)$`)
	idRe          = regexp.MustCompile(`(?m)^id:\s*(.+)$`)
	triggerRe     = regexp.MustCompile(`(?m)^trigger:\s*(.+)$`)
	jsonArrayRe   = regexp.MustCompile(`(?s)\[.*?\]`)
)

const topicVar = "{{topic}}"

// Patch is one loaded context patch: an id, a trigger description consulted
// by the classifier, and a body template.
type Patch struct {
	ID      string
	Trigger string
	Content string
}

// MatchResult is one classifier hit.
type MatchResult struct {
	PatchID string `json:"patchId"`
	Topic   string `json:"topic"`
}

// parsePatchFile parses the frontmatter grammar: a --- delimited header that
// must carry both id and trigger, followed by the body.
func parsePatchFile(content string) (Patch, bool) {
	m := frontmatterRe.FindStringSubmatch(content)
	if m == nil {
		return Patch{}, false
	}
	frontmatter, body := m[1], strings.TrimSpace(m[2])

	idMatch := idRe.FindStringSubmatch(frontmatter)
	triggerMatch := triggerRe.FindStringSubmatch(frontmatter)
	if idMatch == nil || triggerMatch == nil {
		return Patch{}, false
	}

	return Patch{
		ID:      strings.TrimSpace(idMatch[1]),
		Trigger: strings.TrimSpace(triggerMatch[1]),
		Content: body,
	}, true
}

// Load reads all *.md files in dir in filename order. A missing directory
// yields an empty result; a file missing id or trigger is skipped with a
// warning. Neither is fatal to the caller.
func Load(dir string, logger *slog.Logger) []Patch {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("patch directory not readable", slog.String("dir", dir), slog.String("error", err.Error()))
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var patches []Patch
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("patch file not readable", slog.String("file", name), slog.String("error", err.Error()))
			continue
		}
		p, ok := parsePatchFile(string(content))
		if !ok {
			logger.Warn("patch file skipped", slog.String("file", name), slog.String("reason", "missing frontmatter, id, or trigger"))
			continue
		}
		patches = append(patches, p)
	}
	return patches
}

// BuildDetectionPrompt renders the classification template. The instructions
// demand conservative matching: precision over recall.
func BuildDetectionPrompt(patches []Patch, userMessage string) string {
	var descriptions []string
	for _, p := range patches {
		descriptions = append(descriptions, fmt.Sprintf("- %s: %s", p.ID, p.Trigger))
	}

	return fmt.Sprintf(`你是一个精确的话题检测器。分析用户消息，判断是否明确涉及以下领域。

## 可用领域
%s

## 用户消息
%s

## 规则
1. **保守匹配**：只有当用户消息明确涉及该领域时才匹配，模糊或边缘情况不匹配
2. 如果匹配，提取用户讨论的具体话题作为 topic
3. 返回 JSON 格式

## 输出格式
返回 JSON 数组，每个匹配项包含 patchId 和 topic：
`+"```json"+`
[{"patchId": "acf", "topic": "房产网站内容建模"}]
`+"```"+`

如果没有匹配，返回空数组：
`+"```json"+`
[]
`+"```"+`

只返回 JSON，不要其他内容。`, strings.Join(descriptions, "\n"), userMessage)
}

// ParseDetectionResponse extracts the first JSON-array substring from the
// classifier's reply (tolerating surrounding prose or code fences) and keeps
// only well-typed entries. Any failure yields an empty slice.
func ParseDetectionResponse(response string) []MatchResult {
	raw := jsonArrayRe.FindString(response)
	if raw == "" {
		return nil
	}

	var entries []map[string]any
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil
	}

	var matches []MatchResult
	for _, e := range entries {
		patchID, ok1 := e["patchId"].(string)
		topic, ok2 := e["topic"].(string)
		if ok1 && ok2 {
			matches = append(matches, MatchResult{PatchID: patchID, Topic: topic})
		}
	}
	return matches
}

// ReplaceVariables substitutes every {{topic}} placeholder.
func ReplaceVariables(content, topic string) string {
	return strings.ReplaceAll(content, topicVar, topic)
}

// BuildInjectionContent renders the matched patches with topics substituted,
// under a fixed section header separated from the base prompt by a rule.
// Unknown patch ids are ignored; no resolvable match means no injection at
// all, not an empty section.
func BuildInjectionContent(patches []Patch, matches []MatchResult) string {
	if len(matches) == 0 {
		return ""
	}

	byID := make(map[string]Patch, len(patches))
	for _, p := range patches {
		byID[p.ID] = p
	}

	var injections []string
	for _, m := range matches {
		if p, ok := byID[m.PatchID]; ok {
			injections = append(injections, ReplaceVariables(p.Content, m.Topic))
		}
	}
	if len(injections) == 0 {
		return ""
	}

	return "\n\n---\n\n## Context Patches\n\n" + strings.Join(injections, "\n\n")
}

// DetectionModel maps the main model to a cheaper variant for the
// classification sub-call; the classifier does not need the primary model's
// capability, and thinking models carry request requirements the classifier
// should not inherit.
func DetectionModel(mainModel string) string {
	if strings.Contains(mainModel, "-think") {
		return strings.ReplaceAll(mainModel, "-think", "")
	}
	if strings.Contains(mainModel, "claude") {
		return "claude-haiku-4-5-20251001"
	}
	if strings.Contains(mainModel, "gpt") {
		return "gpt-4.1-mini"
	}
	return mainModel
}
