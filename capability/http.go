package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/common/util"
)

var logger = util.GetLoggerForModule("capability")

// HTTPProvider invokes capabilities through an external gateway that
// fronts the actual LLM and web backends. The gateway speaks a small
// JSON protocol: one POST per invocation, the response body is the raw
// capability output.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
}

type invokeRequest struct {
	Kind    string       `json:"kind"`
	Mode    string       `json:"mode"`
	Payload common.Bytes `json:"payload"`
}

// NewHTTPProvider creates an HTTPProvider for the configured gateway
// endpoint.
func NewHTTPProvider() *HTTPProvider {
	return &HTTPProvider{
		endpoint: viper.GetString(common.CfgCapabilityEndpoint),
		client: &http.Client{
			Timeout: time.Duration(viper.GetInt(common.CfgSandboxCapabilityTimeoutSecs)) * time.Second,
		},
	}
}

// Invoke posts the invocation to the gateway and returns the raw
// response body. Transport and gateway errors surface as Faults.
func (p *HTTPProvider) Invoke(ctx context.Context, spec BlockSpec) (common.Bytes, error) {
	body, err := json.Marshal(invokeRequest{
		Kind:    string(spec.Kind),
		Mode:    string(spec.Mode),
		Payload: spec.Payload,
	})
	if err != nil {
		return nil, NewFault(spec.Kind, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, NewFault(spec.Kind, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		logger.WithFields(log.Fields{
			"kind":  spec.Kind,
			"mode":  spec.Mode,
			"error": err,
		}).Debug("Capability invocation failed")
		return nil, NewFault(spec.Kind, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewFault(spec.Kind, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewFault(spec.Kind, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, out))
	}
	return out, nil
}
