package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/duskmantle/courtmind/api/schemas"
)

// MediaClient implements schemas.MediaGenerator for one modality by
// posting generation requests to the collaborator's media endpoint.
type MediaClient struct {
	client   *Client
	modality schemas.Modality
}

var _ schemas.MediaGenerator = (*MediaClient)(nil)

// NewMediaClient binds a generator to one modality on the shared client.
func NewMediaClient(client *Client, modality schemas.Modality) *MediaClient {
	return &MediaClient{client: client, modality: modality}
}

// Generate produces one artifact. The response body is the artifact
// envelope as JSON.
func (m *MediaClient) Generate(ctx context.Context, req schemas.MediaRequest) (schemas.MediaResult, error) {
	req.Modality = m.modality
	body, err := m.client.post(ctx, fmt.Sprintf("/v1/media/%s", m.modality), req)
	if err != nil {
		return schemas.MediaResult{}, err
	}

	var result schemas.MediaResult
	if err := json.Unmarshal(body, &result); err != nil {
		return schemas.MediaResult{}, schemas.NewCollabError(schemas.ErrCodeBadPayload, err)
	}
	m.client.logger.Debug("Media artifact generated",
		zap.String("modality", string(m.modality)), zap.String("turn_id", req.TurnID))
	return result, nil
}

// Generators returns one MediaGenerator per modality, all sharing the
// same underlying HTTP client and rate limiter.
func Generators(client *Client) map[schemas.Modality]schemas.MediaGenerator {
	out := make(map[schemas.Modality]schemas.MediaGenerator, len(schemas.Modalities))
	for _, m := range schemas.Modalities {
		out[m] = NewMediaClient(client, m)
	}
	return out
}
