package compression

import (
	"fmt"
	"strings"

	"github.com/memorypg/memorypg/tokens"
	"github.com/memorypg/memorypg/types"
)

// summaryPromptEN instructs the model to return a strict JSON object. The
// summarizer parses leniently, but the instruction keeps well-behaved models
// on the structured path.
const summaryPromptEN = `Summarize the following conversation between a user and an AI assistant.

Respond with a single JSON object and nothing else, in exactly this shape:
{"summary": "<2-4 sentence summary of what was discussed and accomplished>", "keyPoints": ["<key point>", "..."]}

Rules:
- "summary" captures the main goal, what was done, and the outcome.
- "keyPoints" lists up to 8 concrete facts worth remembering: decisions made, files changed, errors fixed, preferences stated.
- Do not wrap the JSON in markdown fences or add commentary.

<conversation>
%s
</conversation>`

// summaryPromptZH is the Chinese-language variant, selected when the
// conversation is dominantly CJK.
const summaryPromptZH = `请总结以下用户与 AI 助手之间的对话。

只返回一个 JSON 对象，不要输出其他内容，格式如下：
{"summary": "<2-4 句话概括讨论内容和完成的工作>", "keyPoints": ["<要点>", "..."]}

要求：
- "summary" 概括主要目标、做了什么、结果如何。
- "keyPoints" 列出最多 8 条值得记住的具体事实：做出的决定、修改的文件、修复的错误、用户偏好。
- 不要用 markdown 代码块包裹 JSON，不要添加任何说明文字。

<conversation>
%s
</conversation>`

// BuildSummaryPrompt renders the localized summarization prompt for the
// given messages. The template language follows the dominant language of
// the conversation text.
func BuildSummaryPrompt(msgs []*types.Message) string {
	text := FormatMessagesAsText(msgs)
	if tokens.DominantLanguage(text) == "zh" {
		return fmt.Sprintf(summaryPromptZH, text)
	}
	return fmt.Sprintf(summaryPromptEN, text)
}

// FormatMessagesAsText renders messages as readable text for the
// summarization prompt. Tool payloads are abbreviated.
func FormatMessagesAsText(msgs []*types.Message) string {
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(roleLabel(msg.Role))
		b.WriteString(":\n")
		b.WriteString(msg.Content)
		for _, call := range msg.ToolCalls {
			output := call.Output
			if len(output) > 500 {
				output = output[:497] + "..."
			}
			if call.IsError {
				fmt.Fprintf(&b, "\n[Tool Error %s: %s]", call.Name, output)
			} else {
				fmt.Fprintf(&b, "\n[Tool %s: %s]", call.Name, output)
			}
		}
	}
	return b.String()
}

func roleLabel(role types.Role) string {
	switch role {
	case types.RoleUser:
		return "User"
	case types.RoleAssistant:
		return "Assistant"
	case types.RoleSystem:
		return "System"
	case types.RoleTool:
		return "Tool"
	default:
		return string(role)
	}
}
