package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ctessum/sparse"
)

// HTTPModel is a ModelHandle backed by a tensor-in/tensor-out inference
// endpoint. The request and response carry arrays as flat float lists plus
// an explicit shape.
type HTTPModel struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTPModel builds a handle for the given endpoint. A zero timeout means
// no client-side timeout, matching the engine's no-timeout contract.
func NewHTTPModel(endpoint string, timeout time.Duration) *HTTPModel {
	return &HTTPModel{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: timeout},
	}
}

type tensorJSON struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

type inferRequest struct {
	Patches   []tensorJSON `json:"patches"`
	Elevation *tensorJSON  `json:"elevation,omitempty"`
}

type inferResponse struct {
	Logits *tensorJSON `json:"logits"`
}

// Infer implements ModelHandle. A response without logits maps to nil,
// the "tile unusable" outcome.
func (m *HTTPModel) Infer(ctx context.Context, patches []*sparse.DenseArray, elevation *sparse.DenseArray) (*sparse.DenseArray, error) {
	req := inferRequest{}
	for _, p := range patches {
		req.Patches = append(req.Patches, tensorJSON{Shape: p.Shape, Data: p.Elements})
	}
	if elevation != nil {
		req.Elevation = &tensorJSON{Shape: elevation.Shape, Data: elevation.Elements}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("classify: inference request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classify: inference endpoint returned %s", resp.Status)
	}

	var out inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("classify: decode inference response: %w", err)
	}
	if out.Logits == nil {
		return nil, nil
	}
	arr := sparse.ZerosDense(out.Logits.Shape...)
	if len(arr.Elements) != len(out.Logits.Data) {
		return nil, fmt.Errorf("classify: logit payload length %d does not match shape %v",
			len(out.Logits.Data), out.Logits.Shape)
	}
	copy(arr.Elements, out.Logits.Data)
	return arr, nil
}
