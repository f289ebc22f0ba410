package methods

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"credtrust/internal/verification/models"
)

// QRConfidence is awarded to a well-formed QR payload naming the credential.
const QRConfidence = 85

const qrSchemaURL = "https://credtrust.local/schemas/qr-payload.schema.json"

const qrSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["credentialId"],
  "properties": {
    "credentialId": {"type": "string", "minLength": 1},
    "issuer": {"type": "string"},
    "verifyUrl": {"type": "string", "format": "uri"}
  }
}`

// QRPresence checks the decoded QR payload printed on the certificate.
type QRPresence struct {
	schema *jsonschema.Schema
}

// NewQRPresence compiles the payload schema.
func NewQRPresence() (*QRPresence, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	if err := c.AddResource(qrSchemaURL, strings.NewReader(qrSchema)); err != nil {
		return nil, fmt.Errorf("qr schema load failed: %w", err)
	}
	schema, err := c.Compile(qrSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("qr schema compile failed: %w", err)
	}
	return &QRPresence{schema: schema}, nil
}

func (m *QRPresence) Name() models.Method {
	return models.MethodQRCode
}

func (m *QRPresence) Evaluate(_ context.Context, req models.Request) (models.MethodResult, error) {
	payload := strings.TrimSpace(req.QRPayload)
	if payload == "" {
		return models.Failed(models.MethodQRCode, "qr payload absent"), nil
	}

	var doc any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return m.reject("qr payload is not JSON", err), nil
	}
	if err := m.schema.Validate(doc); err != nil {
		return m.reject("qr payload does not match schema", err), nil
	}

	fields, _ := doc.(map[string]any)
	credentialID, _ := fields["credentialId"].(string)
	if credentialID != req.Record.CredentialID {
		return models.MethodResult{
			Method:  models.MethodQRCode,
			Status:  models.StatusFailed,
			Details: map[string]any{"qrCredentialId": credentialID},
			Error:   "qr payload names a different credential",
		}, nil
	}

	details := map[string]any{"credentialId": credentialID}
	if issuer, ok := fields["issuer"].(string); ok {
		details["issuer"] = issuer
	}
	if verifyURL, ok := fields["verifyUrl"].(string); ok {
		details["verifyUrl"] = verifyURL
	}
	return models.MethodResult{
		Method:     models.MethodQRCode,
		Confidence: QRConfidence,
		Status:     models.StatusPassed,
		Details:    details,
	}, nil
}

func (m *QRPresence) reject(reason string, err error) models.MethodResult {
	return models.MethodResult{
		Method: models.MethodQRCode,
		Status: models.StatusFailed,
		Error:  NewMethodError(ErrorBadData, models.MethodQRCode, reason, err).Error(),
	}
}
