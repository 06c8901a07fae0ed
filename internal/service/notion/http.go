package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

func (s *Service) endpoint(format string, args ...any) string {
	return strings.TrimRight(s.config.BaseURL, "/") + fmt.Sprintf(format, args...)
}

func (s *Service) queryDatabase(ctx context.Context, cursor string) (*DatabaseResponse, error) {
	body := map[string]any{
		"page_size": 100,
	}
	if cursor != "" {
		body["start_cursor"] = cursor
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.endpoint("/databases/%s/query", s.config.DatabaseID), bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var response DatabaseResponse
	if err := s.do(req, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// getAllBlocksRecursively fetches all blocks, descending into blocks with
// has_children set.
func (s *Service) getAllBlocksRecursively(ctx context.Context, blockID string) ([]map[string]any, error) {
	var allBlocks []map[string]any
	cursor := ""

	for {
		blocks, nextCursor, hasMore, err := s.getPageBlocks(ctx, blockID, cursor)
		if err != nil {
			return nil, fmt.Errorf("failed to get page blocks: %w", err)
		}

		for _, block := range blocks {
			allBlocks = append(allBlocks, block)

			if hasChildren, ok := block["has_children"].(bool); ok && hasChildren {
				if childID, ok := block["id"].(string); ok {
					children, err := s.getAllBlocksRecursively(ctx, childID)
					if err != nil {
						s.logger.Warn("Failed to fetch children blocks",
							zap.String("block_id", childID),
							zap.Error(err))
						continue
					}
					allBlocks = append(allBlocks, children...)
				}
			}
		}

		if !hasMore {
			break
		}
		cursor = nextCursor
	}

	return allBlocks, nil
}

func (s *Service) getPageBlocks(ctx context.Context, pageID, cursor string) ([]map[string]any, string, bool, error) {
	endpoint := s.endpoint("/blocks/%s/children", pageID)
	if cursor != "" {
		endpoint += "?start_cursor=" + url.QueryEscape(cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to create request: %w", err)
	}

	var response struct {
		Results    []map[string]any `json:"results"`
		NextCursor string           `json:"next_cursor"`
		HasMore    bool             `json:"has_more"`
	}
	if err := s.do(req, &response); err != nil {
		return nil, "", false, err
	}

	return response.Results, response.NextCursor, response.HasMore, nil
}

func (s *Service) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+s.config.Token)
	req.Header.Set("Notion-Version", s.config.APIVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notion API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
