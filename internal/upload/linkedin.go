package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"factmill/manager-go/internal/utils"
)

const linkedInPostsURL = "https://api.linkedin.com/v2/ugcPosts"

// LinkedIn publishes a text share announcing the video through the legacy
// UGC Posts API. The video itself stays on YouTube; the share carries the
// title, description and link.
type LinkedIn struct {
	AccessToken    string
	OrganizationID string
	BaseURL        string
	Client         *http.Client
}

func NewLinkedIn(accessToken, organizationID string, timeout time.Duration) *LinkedIn {
	return &LinkedIn{
		AccessToken:    accessToken,
		OrganizationID: organizationID,
		BaseURL:        linkedInPostsURL,
		Client:         &http.Client{Timeout: timeout},
	}
}

type linkedInShare struct {
	Author          string         `json:"author"`
	LifecycleState  string         `json:"lifecycleState"`
	SpecificContent map[string]any `json:"specificContent"`
	Visibility      map[string]any `json:"visibility"`
}

// PostText publishes a plain text share and returns the post ID.
func (l *LinkedIn) PostText(ctx context.Context, text string) (string, error) {
	if l.AccessToken == "" {
		return "", newError("linkedin", KindAuth, fmt.Errorf("access token not configured"))
	}
	if l.OrganizationID == "" {
		return "", newError("linkedin", KindAuth, fmt.Errorf("organization ID not configured"))
	}

	share := linkedInShare{
		Author:         fmt.Sprintf("urn:li:organization:%s", l.OrganizationID),
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]any{"text": text},
				"shareMediaCategory": "NONE",
			},
		},
		Visibility: map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
	body, err := json.Marshal(share)
	if err != nil {
		return "", newError("linkedin", KindResponse, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", newError("linkedin", KindTransport, err)
	}
	req.Header.Set("Authorization", "Bearer "+l.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	utils.Info("posting to linkedin", "organization", l.OrganizationID)
	resp, err := l.Client.Do(req)
	if err != nil {
		return "", newError("linkedin", KindTransport, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", newError("linkedin", KindAuth,
			fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	default:
		return "", newError("linkedin", KindTransport,
			fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return "", newError("linkedin", KindResponse, err)
		}
	}
	if parsed.ID == "" {
		parsed.ID = resp.Header.Get("X-RestLi-Id")
	}
	utils.Info("linkedin post complete", "post_id", parsed.ID)
	return parsed.ID, nil
}

// Upload satisfies Uploader by sharing a link post about the artifact.
func (l *LinkedIn) Upload(ctx context.Context, req Request) (string, error) {
	if err := checkArtifact("linkedin", req.Artifact, 0); err != nil {
		return "", err
	}
	text := req.Title
	if req.Description != "" {
		text += "\n\n" + req.Description
	}
	return l.PostText(ctx, text)
}
