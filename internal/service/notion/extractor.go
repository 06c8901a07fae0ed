package notion

import "strings"

func extractTitle(properties map[string]any) string {
	for _, prop := range properties {
		if propMap, ok := prop.(map[string]any); ok && propMap["type"] == "title" {
			if text := joinPlainText(propMap["title"]); text != "" {
				return text
			}
		}
	}
	return "Untitled"
}

func extractStatus(properties map[string]any) string {
	for _, prop := range properties {
		if propMap, ok := prop.(map[string]any); ok && propMap["type"] == "status" {
			if statusObj, ok := propMap["status"].(map[string]any); ok {
				if name, ok := statusObj["name"].(string); ok {
					return name
				}
			}
		}
	}
	return ""
}

// extractRichText reads the named rich_text property.
func extractRichText(properties map[string]any, name string) string {
	propMap, ok := properties[name].(map[string]any)
	if !ok || propMap["type"] != "rich_text" {
		return ""
	}
	return joinPlainText(propMap["rich_text"])
}

// blockText returns the plain text of a paragraph-like block.
func blockText(block map[string]any) string {
	blockType, ok := block["type"].(string)
	if !ok {
		return ""
	}
	content, ok := block[blockType].(map[string]any)
	if !ok {
		return ""
	}
	return joinPlainText(content["rich_text"])
}

func joinPlainText(v any) string {
	items, ok := v.([]any)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			if text, ok := m["plain_text"].(string); ok {
				sb.WriteString(text)
			}
		}
	}
	return strings.TrimSpace(sb.String())
}
